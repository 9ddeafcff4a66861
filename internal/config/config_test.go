package config

import (
	"os"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP:      HTTPConfig{Port: 8080},
		Corpus:    CorpusConfig{Addr: "localhost:6334"},
		Embedding: EmbeddingConfig{BaseURL: "http://localhost:5000"},
		LLM:       LLMConfig{BaseURL: "https://llm.example.com/v1"},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingCorpusAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Corpus.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing corpus.addr")
	}
}

func TestValidate_TopPapersExceedsPool(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.Stage1PoolSize = 5
	cfg.Retrieval.TopPapers = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when top_papers exceeds stage1_pool_size")
	}
}

func TestValidate_NegativeRetryDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Resilience.RetryDelaysSec = []int{10, -5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative retry delay")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Retrieval.Stage1PoolSize != 30 {
		t.Errorf("stage1_pool_size default = %d, want 30", cfg.Retrieval.Stage1PoolSize)
	}
	if cfg.Retrieval.TopPapers != 3 {
		t.Errorf("top_papers default = %d, want 3", cfg.Retrieval.TopPapers)
	}
	if cfg.Retrieval.BonusCeiling != 0.15 {
		t.Errorf("bonus_ceiling default = %v, want 0.15", cfg.Retrieval.BonusCeiling)
	}
	if cfg.Embedding.QueryPrefix != "query: " {
		t.Errorf("query_prefix default = %q, want %q", cfg.Embedding.QueryPrefix, "query: ")
	}
	want := []int{10, 20, 40, 80, 160}
	if len(cfg.Resilience.RetryDelaysSec) != len(want) {
		t.Fatalf("retry_delays_sec default = %v, want %v", cfg.Resilience.RetryDelaysSec, want)
	}
	for i, d := range want {
		if cfg.Resilience.RetryDelaysSec[i] != d {
			t.Errorf("retry_delays_sec[%d] = %d, want %d", i, cfg.Resilience.RetryDelaysSec[i], d)
		}
	}
}

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("CLINEVID_TEST_KEY", "secret")
	defer os.Unsetenv("CLINEVID_TEST_KEY")

	in := []byte("api_key: ${CLINEVID_TEST_KEY}\nmodel: ${CLINEVID_TEST_MODEL:-tgi}\n")
	out := string(expandEnvVars(in))

	want := "api_key: secret\nmodel: tgi\n"
	if out != want {
		t.Errorf("expandEnvVars = %q, want %q", out, want)
	}
}
