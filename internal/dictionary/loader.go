package dictionary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type modelFile struct {
	Namespaces map[string]string `yaml:"namespaces"`
	Types      []classFile       `yaml:"types"`
	Aspects    []classFile       `yaml:"aspects"`
}

type classFile struct {
	Name       string         `yaml:"name"`
	Parent     string         `yaml:"parent"`
	Properties []propertyFile `yaml:"properties"`
}

type propertyFile struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Indexed   *bool  `yaml:"indexed"`
	Stored    bool   `yaml:"stored"`
	Tokenised string `yaml:"tokenised"`
	Multiple  bool   `yaml:"multiple"`
}

// LoadFile reads a YAML content model from path.
func LoadFile(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model %s: %w", path, err)
	}
	d, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", path, err)
	}
	return d, nil
}

// Load parses a YAML content model. Names may use any prefix declared in
// the model's namespaces section or the built-in d/cm/sys prefixes.
func Load(data []byte) (*Dictionary, error) {
	var mf modelFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing model: %w", err)
	}
	d := New()
	for prefix, uri := range mf.Namespaces {
		d.ns.Register(prefix, uri)
	}
	for _, c := range mf.Types {
		if err := d.addClassFile(c, false); err != nil {
			return nil, err
		}
	}
	for _, c := range mf.Aspects {
		if err := d.addClassFile(c, true); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dictionary) addClassFile(c classFile, aspect bool) error {
	name, err := Resolve(d.ns, c.Name)
	if err != nil {
		return fmt.Errorf("class %q: %w", c.Name, err)
	}
	def := ClassDef{Name: name, IsAspect: aspect}
	if c.Parent != "" {
		if def.Parent, err = Resolve(d.ns, c.Parent); err != nil {
			return fmt.Errorf("class %q parent: %w", c.Name, err)
		}
	}
	props := make([]PropertyDef, 0, len(c.Properties))
	for _, p := range c.Properties {
		pd, err := d.propertyFromFile(p)
		if err != nil {
			return fmt.Errorf("class %q: %w", c.Name, err)
		}
		props = append(props, pd)
	}
	d.AddClass(def, props...)
	return nil
}

func (d *Dictionary) propertyFromFile(p propertyFile) (PropertyDef, error) {
	name, err := Resolve(d.ns, p.Name)
	if err != nil {
		return PropertyDef{}, fmt.Errorf("property %q: %w", p.Name, err)
	}
	dt, err := Resolve(d.ns, p.Type)
	if err != nil {
		return PropertyDef{}, fmt.Errorf("property %q type: %w", p.Name, err)
	}
	if !d.IsDataType(dt) {
		return PropertyDef{}, fmt.Errorf("property %q: unknown data type %q", p.Name, p.Type)
	}
	pd := PropertyDef{
		Name:     name,
		DataType: dt,
		Indexed:  p.Indexed == nil || *p.Indexed,
		Stored:   p.Stored,
		Multiple: p.Multiple,
	}
	switch p.Tokenised {
	case "", "true":
		pd.Tokenised = TokeniseTrue
	case "false":
		pd.Tokenised = TokeniseFalse
	case "both":
		pd.Tokenised = TokeniseBoth
	default:
		return PropertyDef{}, fmt.Errorf("property %q: bad tokenised value %q", p.Name, p.Tokenised)
	}
	return pd, nil
}
