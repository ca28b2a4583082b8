package detector

import "testing"

func TestSelectVariant(t *testing.T) {
	all := map[Variant]string{
		VariantParallelVector: "runtime/parallel_vector",
		VariantVector:         "runtime/vector",
		VariantParallel:       "runtime/parallel",
		VariantBaseline:       "runtime/baseline",
	}

	tests := []struct {
		name      string
		available map[Variant]string
		caps      Capabilities
		want      Variant
		wantOK    bool
	}{
		{
			name:      "full host picks most optimized",
			available: all,
			caps:      Capabilities{Parallel: true, Vector: true},
			want:      VariantParallelVector,
			wantOK:    true,
		},
		{
			name:      "vector only",
			available: all,
			caps:      Capabilities{Vector: true},
			want:      VariantVector,
			wantOK:    true,
		},
		{
			name:      "parallel only",
			available: all,
			caps:      Capabilities{Parallel: true},
			want:      VariantParallel,
			wantOK:    true,
		},
		{
			name:      "plain host",
			available: all,
			caps:      Capabilities{},
			want:      VariantBaseline,
			wantOK:    true,
		},
		{
			name: "missing path is skipped",
			available: map[Variant]string{
				VariantParallelVector: "",
				VariantParallel:       "runtime/parallel",
			},
			caps:   Capabilities{Parallel: true, Vector: true},
			want:   VariantParallel,
			wantOK: true,
		},
		{
			name:      "unsupported only",
			available: map[Variant]string{VariantVector: "runtime/vector"},
			caps:      Capabilities{Parallel: true},
			wantOK:    false,
		},
		{
			name:      "nothing available",
			available: nil,
			caps:      Capabilities{Parallel: true, Vector: true},
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, path, ok := SelectVariant(tt.available, tt.caps)
			if ok != tt.wantOK {
				t.Fatalf("SelectVariant() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("SelectVariant() = %v, want %v", got, tt.want)
			}
			if path != tt.available[tt.want] {
				t.Errorf("SelectVariant() path = %q, want %q", path, tt.available[tt.want])
			}
		})
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range variantPreference {
		got, err := ParseVariant(string(v))
		if err != nil {
			t.Errorf("ParseVariant(%q) error = %v", v, err)
		}
		if got != v {
			t.Errorf("ParseVariant(%q) = %v", v, got)
		}
	}

	if _, err := ParseVariant("asm"); err == nil {
		t.Error("ParseVariant(\"asm\") should fail")
	}
}

func TestCapabilities_BaselineAlwaysSupported(t *testing.T) {
	if !(Capabilities{}).Supports(VariantBaseline) {
		t.Error("baseline must be supported on every host")
	}
	if (Capabilities{}).Supports(Variant("unknown")) {
		t.Error("unknown variants must not be supported")
	}
}
