package queue

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition is a queue declared in a definitions document. Omitted fields keep
// the registration defaults.
type Definition struct {
	Name       string           `yaml:"-"`
	Priority   *Priority        `yaml:"priority"`
	MaxWorkers *int             `yaml:"max_workers"`
	BatchSize  *int             `yaml:"batch_size"`
	Timeout    *time.Duration   `yaml:"timeout"`
	MaxRetries *int             `yaml:"max_retries"`
	DeadLetter *bool            `yaml:"dead_letter"`
	Retry      *RetryDefinition `yaml:"retry"`
}

// RetryDefinition overrides parts of the retry policy of a queue.
type RetryDefinition struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type definitionsDocument struct {
	Queues map[string]Definition `yaml:"queues"`
}

// Options converts the definition into registration options.
func (d Definition) Options() []QueueOption {
	var opts []QueueOption
	if d.Priority != nil {
		opts = append(opts, WithQueuePriority(*d.Priority))
	}
	if d.MaxWorkers != nil {
		opts = append(opts, WithMaxWorkers(*d.MaxWorkers))
	}
	if d.BatchSize != nil {
		opts = append(opts, WithBatchSize(*d.BatchSize))
	}
	if d.Timeout != nil {
		opts = append(opts, WithQueueTimeout(*d.Timeout))
	}
	if d.MaxRetries != nil {
		opts = append(opts, WithMaxRetries(*d.MaxRetries))
	}
	if d.DeadLetter != nil {
		opts = append(opts, WithDeadLetter(*d.DeadLetter))
	}
	if r := d.Retry; r != nil {
		opts = append(opts, func(c *QueueConfig) {
			if r.InitialDelay > 0 {
				c.Retry.InitialDelay = r.InitialDelay
			}
			if r.Multiplier > 0 {
				c.Retry.Multiplier = r.Multiplier
			}
			if r.MaxDelay > 0 {
				c.Retry.MaxDelay = r.MaxDelay
			}
		})
	}
	return opts
}

// LoadDefinitions decodes a YAML document of the form
//
//	queues:
//	  emails:
//	    priority: 75
//	    max_workers: 2
//	    timeout: 30s
//	    retry:
//	      initial_delay: 10s
//
// and returns its definitions sorted by name.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var doc definitionsDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Join(ErrInvalidDefinitions, err)
	}

	defs := make([]Definition, 0, len(doc.Queues))
	for name, d := range doc.Queues {
		if err := validateQueueName(name); err != nil {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidDefinitions, err, name)
		}
		d.Name = name
		defs = append(defs, d)
	}
	slices.SortFunc(defs, func(a, b Definition) int { return cmp.Compare(a.Name, b.Name) })
	return defs, nil
}

// LoadDefinitionsFile reads definitions from a YAML file
func LoadDefinitionsFile(path string) ([]Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queue definitions: %w", err)
	}
	defer f.Close()
	return LoadDefinitions(f)
}

// RegisterDefinitions registers every definition, continuing past invalid ones.
func (m *Manager) RegisterDefinitions(defs []Definition) error {
	var errs []error
	for _, d := range defs {
		if err := m.RegisterQueue(d.Name, d.Options()...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
