package master

import (
	"errors"
	"time"

	"github.com/rob-gra/go-dnp3/dnplog"
	"gopkg.in/ini.v1"
)

// ErrUnknownAssociation is returned when a Channel method references an
// association name that was never added.
var ErrUnknownAssociation = errors.New("master: unknown association")

// Channel owns the set of Associations sharing one underlying
// communication path (one TCP connection or one serial port), keyed by
// name.
type Channel struct {
	associations map[string]*Association
	log          dnplog.Logger
}

// NewChannel creates an empty Channel.
func NewChannel(log dnplog.Logger) *Channel {
	return &Channel{associations: make(map[string]*Association), log: log}
}

// AddAssociation registers assoc under cfg.Name, replacing any prior
// association of the same name.
func (c *Channel) AddAssociation(cfg AssociationConfig, transport FragmentTransport) *Association {
	assoc := NewAssociation(cfg, transport, c.log)
	c.associations[cfg.Name] = assoc
	return assoc
}

// Association returns the named association, if any.
func (c *Channel) Association(name string) (*Association, error) {
	a, ok := c.associations[name]
	if !ok {
		return nil, ErrUnknownAssociation
	}
	return a, nil
}

// Names returns every registered association name.
func (c *Channel) Names() []string {
	out := make([]string, 0, len(c.associations))
	for name := range c.associations {
		out = append(out, name)
	}
	return out
}

// AssociationFileConfig is one [association] section parsed from an INI
// file by LoadAssociationsINI.
type AssociationFileConfig struct {
	Name                   string
	Address                uint16
	ResponseTimeoutSeconds int
	SelectTimeoutSeconds   int
	IntegrityPeriodSeconds int
}

// LoadAssociationsINI reads a channel's association table from an INI
// file, one [association.<name>] section per outstation.
//
// Example file:
//
//	[association.substation1]
//	address = 1024
//	response_timeout_seconds = 5
//	select_timeout_seconds = 10
//	integrity_period_seconds = 300
func LoadAssociationsINI(path string) ([]AssociationFileConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	var out []AssociationFileConfig
	for _, section := range cfg.Sections() {
		name := section.Name()
		const prefix = "association."
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		entry := AssociationFileConfig{Name: name[len(prefix):]}
		entry.Address = uint16(section.Key("address").MustUint(0))
		entry.ResponseTimeoutSeconds = section.Key("response_timeout_seconds").MustInt(5)
		entry.SelectTimeoutSeconds = section.Key("select_timeout_seconds").MustInt(10)
		entry.IntegrityPeriodSeconds = section.Key("integrity_period_seconds").MustInt(300)
		out = append(out, entry)
	}
	return out, nil
}

// ToAssociationConfig converts a parsed file entry into an
// AssociationConfig ready to pass to Channel.AddAssociation.
func (e AssociationFileConfig) ToAssociationConfig() AssociationConfig {
	return AssociationConfig{
		Name:            e.Name,
		Address:         e.Address,
		ResponseTimeout: time.Duration(e.ResponseTimeoutSeconds) * time.Second,
		SelectTimeout:   time.Duration(e.SelectTimeoutSeconds) * time.Second,
		IntegrityPeriod: time.Duration(e.IntegrityPeriodSeconds) * time.Second,
		Backoff:         DefaultBackoff(),
	}
}
