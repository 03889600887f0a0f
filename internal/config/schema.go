package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSrc string

// validator checks a decoded TOML document against the CUE schema.
type validator struct {
	ctx      *cue.Context
	config   cue.Value
	testID   cue.Value
	override cue.Value
}

func newValidator() *validator {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	return &validator{
		ctx:      ctx,
		config:   schema.LookupPath(cue.ParsePath("#Config")),
		testID:   schema.LookupPath(cue.ParsePath("#TestID")),
		override: schema.LookupPath(cue.ParsePath("#Override")),
	}
}

// knownKey reports whether key is a top-level key of the schema.
func (v *validator) knownKey(key string) bool {
	return v.config.Allows(cue.Str(key))
}

// id validates the spelling of a test id.
func (v *validator) id(id string) error {
	if err := v.testID.Unify(v.ctx.Encode(id)).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("test ids are lowercase words joined by dashes, got %s", describe(id, err))
	}
	return nil
}

// override validates one entry of the test section.
func (v *validator) override(raw any) (bool, error) {
	unified := v.override.Unify(v.ctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return false, fmt.Errorf("expected true or false, got %s", describe(raw, err))
	}
	return unified.Bool()
}

func describe(raw any, err error) string {
	var msgs []string
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msgs = append(msgs, fmt.Sprintf(format, args...))
	}
	switch raw.(type) {
	case string:
		return fmt.Sprintf("string %q (%s)", raw, strings.Join(msgs, "; "))
	default:
		return fmt.Sprintf("%T %v (%s)", raw, raw, strings.Join(msgs, "; "))
	}
}
