// Package sampler draws independent column values for generated rows.
package sampler

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Kind names a distribution.
type Kind string

const (
	KindUUID     Kind = "uuid"
	KindCategory Kind = "category"
	KindUniform  Kind = "uniform"
)

// Params configures a sampler. Only the fields relevant to a kind are read.
type Params struct {
	Prefix  string    `json:"prefix,omitempty"`
	Values  []string  `json:"values,omitempty"`
	Weights []float64 `json:"weights,omitempty"`
	Low     int       `json:"low,omitempty"`
	High    int       `json:"high,omitempty"`
}

// Sampler produces one value per call.
type Sampler interface {
	Kind() Kind
	Sample(r *rand.Rand) any
}

// Factory builds a sampler from params.
type Factory func(Params) (Sampler, error)

// Registry maps a distribution kind to its factory.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry returns a registry with the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: map[Kind]Factory{}}
	r.Register(KindUUID, newUUID)
	r.Register(KindCategory, newCategory)
	r.Register(KindUniform, newUniform)
	return r
}

// Register installs or replaces the factory for kind.
func (r *Registry) Register(kind Kind, f Factory) {
	r.factories[kind] = f
}

// New builds a sampler for kind.
func (r *Registry) New(kind Kind, p Params) (Sampler, error) {
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("unknown sampler kind %q", kind)
	}
	return f(p)
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.factories[kind]
	return ok
}

type uuidSampler struct {
	prefix string
}

func newUUID(p Params) (Sampler, error) {
	return uuidSampler{prefix: p.Prefix}, nil
}

func (uuidSampler) Kind() Kind { return KindUUID }

func (s uuidSampler) Sample(r *rand.Rand) any {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		id = uuid.New()
	}
	return s.prefix + id.String()
}

// Category picks one of Values. Nil weights mean equal weights.
type Category struct {
	values     []string
	cumulative []float64
}

func newCategory(p Params) (Sampler, error) {
	return NewCategory(p.Values, p.Weights)
}

// NewCategory validates values/weights and precomputes cumulative weights.
func NewCategory(values []string, weights []float64) (*Category, error) {
	if len(values) == 0 {
		return nil, errors.New("category sampler needs at least one value")
	}
	if weights == nil {
		weights = make([]float64, len(values))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(values) {
		return nil, fmt.Errorf("category sampler has %d values but %d weights", len(values), len(weights))
	}
	cum := make([]float64, len(weights))
	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("category weight %d is negative", i)
		}
		total += w
		cum[i] = total
	}
	if total <= 0 {
		return nil, errors.New("category weights must sum to a positive value")
	}
	return &Category{values: append([]string(nil), values...), cumulative: cum}, nil
}

func (*Category) Kind() Kind { return KindCategory }

func (c *Category) Sample(r *rand.Rand) any {
	total := c.cumulative[len(c.cumulative)-1]
	return c.values[WeightedChoice(c.cumulative, r.Float64()*total)]
}

// WeightedChoice returns the first index whose cumulative weight exceeds u.
// u must lie in [0, cumulative[len-1]).
func WeightedChoice(cumulative []float64, u float64) int {
	i := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] > u })
	if i == len(cumulative) {
		i--
	}
	return i
}

type uniformInt struct {
	low, high int
}

func newUniform(p Params) (Sampler, error) {
	if p.Low > p.High {
		return nil, fmt.Errorf("uniform sampler low %d exceeds high %d", p.Low, p.High)
	}
	return uniformInt{low: p.Low, high: p.High}, nil
}

func (uniformInt) Kind() Kind { return KindUniform }

func (u uniformInt) Sample(r *rand.Rand) any {
	return u.low + r.Intn(u.high-u.low+1)
}
