package web

import (
	"fmt"
	"net/http"

	"github.com/pwilczewski/deepsupervisedhash/nnet"
)

type ConfigPage struct {
	*Templates
	net    *Network
	Fields []Field
	Errors map[string]string
}

type Field struct {
	Name    string
	Value   string
	Boolean bool
	On      bool
}

// Base data for handler functions to view and update the network config
func NewConfigPage(t *Templates, net *Network) *ConfigPage {
	p := &ConfigPage{net: net, Errors: map[string]string{}}
	p.Templates = t.Select("/config")
	p.AddOption(Link{Name: "save", Url: "/config/save", Submit: true})
	p.AddOption(Link{Name: "reset", Url: "/config/reset"})
	return p
}

// Handler function for the config form
func (p *ConfigPage) Base() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		p.Fields = getFields(p.net.Conf)
		p.Exec(w, "config", p)
	}
}

// Handler function for the save action: parse the form, apply each field and
// write the updated config back to disk. Applies only when training is
// stopped since the running networks were built from the old settings.
func (p *ConfigPage) Save() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if p.net.running {
			logError(w, fmt.Errorf("stop training before editing the config"))
			return
		}
		r.ParseForm()
		conf := p.net.Conf
		p.Errors = map[string]string{}
		var err error
		for _, fld := range getFields(conf) {
			val := r.Form.Get(fld.Name)
			if fld.Boolean {
				conf, err = conf.SetBool(fld.Name, val == "true")
			} else {
				conf, err = conf.SetString(fld.Name, val)
			}
			if err != nil {
				p.Errors[fld.Name] = "invalid syntax"
			}
		}
		if len(p.Errors) == 0 {
			if err := conf.Save(p.net.Model + ".net"); err != nil {
				logError(w, err)
				return
			}
			p.net.setConfig(conf)
		}
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}

// Handler function for the reset action: revert to the saved defaults
func (p *ConfigPage) Reset() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		p.net.Lock()
		defer p.net.Unlock()
		if p.net.running {
			logError(w, fmt.Errorf("stop training before editing the config"))
			return
		}
		conf, err := nnet.LoadConfig(p.net.Model + ".default")
		if err != nil {
			logError(w, err)
			return
		}
		if err = conf.Save(p.net.Model + ".net"); err != nil {
			logError(w, err)
			return
		}
		p.net.setConfig(conf)
		http.Redirect(w, r, "/config", http.StatusFound)
	}
}

func (p *ConfigPage) Model() string {
	return p.net.Model
}

func (p *ConfigPage) Error(name string) string {
	return p.Errors[name]
}

// Layers lists the network definition from the config
func (p *ConfigPage) Layers() []string {
	desc := make([]string, len(p.net.Conf.Layers))
	for i, l := range p.net.Conf.Layers {
		desc[i] = l.String()
	}
	return desc
}

func getFields(conf nnet.Config) []Field {
	keys := conf.Fields()
	flds := make([]Field, len(keys))
	for i, key := range keys {
		f := Field{Name: key, Value: fmt.Sprint(conf.Get(key))}
		f.On, f.Boolean = conf.Get(key).(bool)
		flds[i] = f
	}
	return flds
}
