// Package plan reads YAML import plans: a list of statement files, each
// with its target account and confirmed column mapping, imported in order.
//
//	defaults:
//	  locale:
//	    date_format: dd/MM/yyyy
//	    decimal_separator: ","
//	    thousands_separator: "."
//	imports:
//	  - file: statements/jan.csv
//	    account: Checking
//	    skip: 2
//	    mappings:
//	      Data: Date
//	      Importo: Amount
//	      Descrizione: Description
package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/fintrack/internal/core"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Defaults struct {
	Locale core.Locale `yaml:"locale"`
}

type Plan struct {
	Defaults    Defaults `yaml:"defaults"`
	StopOnError bool     `yaml:"stop_on_error"`
	Imports     []Entry  `yaml:"imports"`
}

// Entry is one statement to import.
type Entry struct {
	File     string            `yaml:"file"`
	Account  string            `yaml:"account"` // id or name
	Mappings map[string]string `yaml:"mappings"`
	Locale   core.Locale       `yaml:"locale"`
	Skip     int               `yaml:"skip"`
}

// Load reads and validates the plan at path. Relative entry files are
// resolved against the plan's directory.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range p.Imports {
		if !filepath.IsAbs(p.Imports[i].File) {
			p.Imports[i].File = filepath.Join(dir, p.Imports[i].File)
		}
	}
	return p, nil
}

// Parse decodes a plan document. Unknown keys are rejected so a typo does
// not silently drop a mapping or locale setting.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every entry and reports all problems at once.
func (p *Plan) Validate() error {
	if len(p.Imports) == 0 {
		return errors.New("plan has no imports")
	}
	var errs []error
	for i, e := range p.Imports {
		if e.File == "" {
			errs = append(errs, fmt.Errorf("imports[%d]: file is required", i))
		}
		if e.Account == "" {
			errs = append(errs, fmt.Errorf("imports[%d]: account is required", i))
		}
		if e.Skip < 0 {
			errs = append(errs, fmt.Errorf("imports[%d]: skip must not be negative", i))
		}
		if len(e.Mappings) == 0 {
			errs = append(errs, fmt.Errorf("imports[%d]: mappings are required", i))
		}
		if _, err := e.ColumnMappings(); err != nil {
			errs = append(errs, fmt.Errorf("imports[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// ColumnMappings converts the entry's field names.
func (e Entry) ColumnMappings() (core.ColumnMappings, error) {
	m := make(core.ColumnMappings, len(e.Mappings))
	for header, name := range e.Mappings {
		f, err := core.ParseCanonicalField(name)
		if err != nil {
			return nil, err
		}
		m[header] = f
	}
	return m, nil
}

// EffectiveLocale fills the entry's unset locale fields from defaults.
func (p *Plan) EffectiveLocale(e Entry) core.Locale {
	l := e.Locale
	d := p.Defaults.Locale
	if l.DateFormat == "" {
		l.DateFormat = d.DateFormat
	}
	if l.DecimalSeparator == "" {
		l.DecimalSeparator = d.DecimalSeparator
	}
	if l.ThousandsSeparator == "" {
		l.ThousandsSeparator = d.ThousandsSeparator
	}
	return l
}

// Importer is the part of core.Service a plan needs.
type Importer interface {
	ConfirmImport(ctx context.Context, file core.ImportFile, req core.ConfirmRequest) (*core.ImportOutcome, error)
}

// AccountResolver turns an entry's account reference into an id.
type AccountResolver func(ctx context.Context, ref string) (uuid.UUID, error)

// Result is the outcome of one entry. Exactly one of Outcome and Err is set.
type Result struct {
	Entry   Entry
	Outcome *core.ImportOutcome
	Err     error
}

// Run imports the entries in order and calls report after each one. A
// failed entry does not stop the run unless StopOnError is set; a
// cancelled ctx always does.
func (p *Plan) Run(ctx context.Context, imp Importer, resolve AccountResolver, report func(Result)) ([]Result, error) {
	results := make([]Result, 0, len(p.Imports))
	for _, e := range p.Imports {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := Result{Entry: e}
		res.Outcome, res.Err = p.runEntry(ctx, imp, resolve, e)
		results = append(results, res)
		if report != nil {
			report(res)
		}
		if res.Err != nil && p.StopOnError {
			return results, fmt.Errorf("%s: %w", e.File, res.Err)
		}
	}
	return results, nil
}

func (p *Plan) runEntry(ctx context.Context, imp Importer, resolve AccountResolver, e Entry) (*core.ImportOutcome, error) {
	accountID, err := resolve(ctx, e.Account)
	if err != nil {
		return nil, err
	}
	mappings, err := e.ColumnMappings()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(e.File)
	if err != nil {
		return nil, fmt.Errorf("read statement: %w", err)
	}

	return imp.ConfirmImport(ctx, core.ImportFile{Name: filepath.Base(e.File), Data: data}, core.ConfirmRequest{
		ColumnMappings: mappings,
		Locale:         p.EffectiveLocale(e),
		RowsToSkip:     e.Skip,
		AccountID:      accountID,
	})
}
