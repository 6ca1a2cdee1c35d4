package setup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/estate/config"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"address", validateAddress, "0x00000000000000000000000000000000000000aa", false},
		{"short address", validateAddress, "0xaa", true},
		{"empty optional address", validateOptionalAddress, "", false},
		{"bad optional address", validateOptionalAddress, "alice", true},
		{"positive int", validatePositiveInt, "8", false},
		{"zero int", validatePositiveInt, "0", true},
		{"rate", validateRate, "2.5", false},
		{"negative rate", validateRate, "-1", true},
		{"duration", validateDuration, "90s", false},
		{"bad duration", validateDuration, "soon", true},
		{"required", validateRequired, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWrittenConfigLoads(t *testing.T) {
	a := defaultAnswers()
	a.platform = config.PlatformEVM
	a.contract = "0x00000000000000000000000000000000000000aa"
	a.finalityTimeout = "45s"

	path := filepath.Join(t.TempDir(), ConfigFile)
	require.NoError(t, writeConfig(path, a.toConfig()))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.PlatformEVM, cfg.Platform)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	assert.Equal(t, 45*time.Second, cfg.FinalityTimeout)
	assert.Equal(t, 8, cfg.ReadConcurrency)
	assert.Equal(t, ":8080", cfg.WebAddr)
}

func TestSimulateConfigOmitsContract(t *testing.T) {
	tmp := defaultAnswers().toConfig()
	assert.Equal(t, config.PlatformSimulate, tmp.Platform)
	assert.Empty(t, tmp.RPCURL)
	assert.Empty(t, tmp.ContractAddress)
}
