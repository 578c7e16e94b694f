package config

import (
	"os"
	"strings"
	"testing"
)

// FuzzChildrenTOML feeds random-ish fields into a tiny TOML and ensures the
// loader never panics and never returns specs it did not validate.
func FuzzChildrenTOML(f *testing.F) {
	f.Add("web", "server.js", "--port", "PORT", "80", "one_for_one")
	f.Add("", "", "", "", "", "")
	f.Add("a", "b", "c", "", "x", "rest_for_one")

	f.Fuzz(func(t *testing.T, id, path, arg, envKey, envVal, strat string) {
		clean := func(s string) string {
			return strings.NewReplacer(`"`, "", `\`, "", "\n", "", "\r", "").Replace(s)
		}
		var b strings.Builder
		b.WriteString("strategy = \"" + clean(strat) + "\"\n")
		b.WriteString("[[children]]\n")
		b.WriteString("id = \"" + clean(id) + "\"\n")
		b.WriteString("path = \"" + clean(path) + "\"\n")
		b.WriteString("args = [\"" + clean(arg) + "\"]\n")
		if k := clean(envKey); k != "" {
			b.WriteString("env = { \"" + k + "\" = \"" + clean(envVal) + "\" }\n")
		}
		tmp := t.TempDir() + "/fuzz.toml"
		if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
			t.Skip()
		}
		fc, err := Load(tmp)
		if err != nil {
			return
		}
		specs, err := fc.ChildSpecs()
		if err != nil {
			t.Fatalf("validated config failed to decode: %v", err)
		}
		for _, s := range specs {
			if s.Validate() != nil {
				t.Fatalf("invalid spec accepted: %+v", s)
			}
		}
	})
}
