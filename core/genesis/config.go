package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Allocation mints an initial balance to an Ed25519 public key.
type Allocation struct {
	Address string `json:"address"` // hex-encoded public key
	Amount  uint64 `json:"amount"`
}

// Config describes the genesis block: chain identity, timestamp, and the
// initial balance allocations.
type Config struct {
	ChainID     string       `json:"chainID"`
	Timestamp   time.Time    `json:"timestamp"`
	Allocations []Allocation `json:"allocations"`
}

const configSchema = `{
  "type": "object",
  "required": ["chainID", "timestamp", "allocations"],
  "properties": {
    "chainID": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "format": "date-time"},
    "allocations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["address", "amount"],
        "properties": {
          "address": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"},
          "amount": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

// LoadConfig reads and schema-validates a genesis.json file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig validates raw genesis JSON against the schema and decodes it.
func ParseConfig(data []byte) (*Config, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("genesis: schema validation: %w", err)
	}
	if !result.Valid() {
		msg := "genesis: invalid config:"
		for _, e := range result.Errors() {
			msg += " " + e.String() + ";"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
