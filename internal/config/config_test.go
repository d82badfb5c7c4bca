package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("serve requires port and database", func(t *testing.T) {
		t.Parallel()
		c := &Config{}
		err := c.Validate("serve")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.port")
		assert.Contains(t, err.Error(), "store.database_url")
	})

	t.Run("worker requires redis url", func(t *testing.T) {
		t.Parallel()
		c := &Config{}
		err := c.Validate("worker")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.url")
	})

	t.Run("unknown mode errors", func(t *testing.T) {
		t.Parallel()
		c := &Config{}
		err := c.Validate("bogus")
		require.Error(t, err)
	})

	t.Run("density bounds enforced", func(t *testing.T) {
		t.Parallel()
		c := &Config{
			Server: ServerConfig{Port: 8080},
			Store:  StoreConfig{DatabaseURL: "postgres://x"},
			Filter: FilterConfig{DensityHigh: 0.01, DensityLow: 0.05},
		}
		err := c.Validate("serve")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "filter.density_low")
	})

	t.Run("valid serve config passes", func(t *testing.T) {
		t.Parallel()
		c := &Config{
			Server: ServerConfig{Port: 8080},
			Store:  StoreConfig{DatabaseURL: "postgres://x"},
			Filter: FilterConfig{DensityHigh: 0.05, DensityLow: 0.01},
			Score: ScoreConfig{
				ModalidadeWeight: 30, TimelineWeight: 25,
				ValueFitWeight: 25, GeographyWeight: 20,
			},
		}
		assert.NoError(t, c.Validate("serve"))
	})
}
