// ABOUTME: Catalog seed file loading (YAML) for products and FAQs
// ABOUTME: Used by concierge-admin seed and the gateway's optional startup import

package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the on-disk catalog format:
//
//	products:
//	  - id: rec1
//	    name: Red Shoes
//	    price: 20
//	faqs:
//	  - id: faq1
//	    question: When are you open?
//	    answer: Monday to Friday.
type Seed struct {
	Products []Product `yaml:"products"`
	FAQs     []FAQ     `yaml:"faqs"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks every record has an id and ids are unique per kind.
func (s *Seed) Validate() error {
	seen := make(map[string]bool)
	for i, p := range s.Products {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("product %d: id and name are required", i)
		}
		if seen["p:"+p.ID] {
			return fmt.Errorf("duplicate product id %q", p.ID)
		}
		seen["p:"+p.ID] = true
	}
	for i, f := range s.FAQs {
		if f.ID == "" || f.Question == "" {
			return fmt.Errorf("faq %d: id and question are required", i)
		}
		if seen["f:"+f.ID] {
			return fmt.Errorf("duplicate faq id %q", f.ID)
		}
		seen["f:"+f.ID] = true
	}
	return nil
}

// Apply upserts every record in the seed.
func (s *Seed) Apply(ctx context.Context, w CatalogWriter) error {
	for i := range s.Products {
		if err := w.UpsertProduct(ctx, &s.Products[i]); err != nil {
			return err
		}
	}
	for i := range s.FAQs {
		if err := w.UpsertFAQ(ctx, &s.FAQs[i]); err != nil {
			return err
		}
	}
	return nil
}
