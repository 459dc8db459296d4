package embedding

import (
	"math"
	"testing"

	"tomato/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr bool
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "dimension mismatch", a: []float32{1}, b: []float32{1, 2}, wantErr: true},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNewEngineProviderSelection(t *testing.T) {
	engine, err := NewEngine(config.EmbeddingConfig{Provider: "ollama", OllamaModel: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if engine.Name() != "ollama:m" {
		t.Errorf("engine name = %s", engine.Name())
	}

	if _, err := NewEngine(config.EmbeddingConfig{Provider: "milvus"}); err == nil {
		t.Error("unknown provider must be rejected")
	}
}
