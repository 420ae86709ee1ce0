package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

type instancesFile struct {
	Instances []models.InstanceDefinition `mapstructure:"instances"`
}

// LoadInstances reads the parent account definitions from a YAML or JSON file.
// Password values of the form ${NAME} are expanded from the environment.
func LoadInstances(path string) ([]models.InstanceDefinition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read instances file %s: %w", path, err)
	}

	var file instancesFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode instances file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Instances))
	for i := range file.Instances {
		def := &file.Instances[i]
		def.ID = strings.TrimSpace(def.ID)
		if _, dup := seen[def.ID]; dup && def.ID != "" {
			return nil, fmt.Errorf("instances file %s: duplicate instance id %q", path, def.ID)
		}
		seen[def.ID] = struct{}{}
		def.Username = os.ExpandEnv(def.Username)
		def.Password = os.ExpandEnv(def.Password)
	}
	return file.Instances, nil
}
