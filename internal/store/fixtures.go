package store

import (
    "fmt"
    "os"

    "gopkg.in/yaml.v3"

    "routecap/internal/model"
)

// Fixtures is the YAML seed format, keyed by tenant id.
type Fixtures struct {
    Tenants map[string]TenantFixture `yaml:"tenants"`
}

type TenantFixture struct {
    Settings model.TenantSettings    `yaml:"settings"`
    Vehicles []model.Vehicle         `yaml:"vehicles"`
    Trips    []model.Trip            `yaml:"trips"`
    Requests []model.CustomerRequest `yaml:"requests"`
}

// LoadFixtures reads and validates a fixtures file.
func LoadFixtures(path string) (Fixtures, error) {
    b, err := os.ReadFile(path)
    if err != nil { return Fixtures{}, err }
    return ParseFixtures(b)
}

func ParseFixtures(b []byte) (Fixtures, error) {
    var f Fixtures
    if err := yaml.Unmarshal(b, &f); err != nil { return Fixtures{}, fmt.Errorf("parse fixtures: %w", err) }
    for tenant, tf := range f.Tenants {
        for i := range tf.Trips {
            if err := tf.Trips[i].Validate(); err != nil { return Fixtures{}, fmt.Errorf("tenant %s: %w", tenant, err) }
        }
    }
    return f, nil
}
