package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// RosterEntry is one participant listed in a roster file.
type RosterEntry struct {
	Wallet string `mapstructure:"wallet"`
	Name   string `mapstructure:"name"`
}

// RosterFile is the on-disk roster layout:
//
//	participants:
//	  - wallet: 5Yh...
//	    name: wolf_of_dexstreet
type RosterFile struct {
	Participants []RosterEntry `mapstructure:"participants"`
}

// LoadRosterFile reads a YAML, JSON or TOML roster file and returns parallel
// wallet and name lists in file order.
func LoadRosterFile(path string) (wallets, names []string, err error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read roster file %s: %w", path, err)
	}

	var rf RosterFile
	if err := v.Unmarshal(&rf); err != nil {
		return nil, nil, fmt.Errorf("decode roster file %s: %w", path, err)
	}
	if len(rf.Participants) == 0 {
		return nil, nil, errors.New("roster file lists no participants")
	}

	wallets = make([]string, 0, len(rf.Participants))
	names = make([]string, 0, len(rf.Participants))
	for i, p := range rf.Participants {
		wallet := strings.TrimSpace(p.Wallet)
		if wallet == "" {
			return nil, nil, fmt.Errorf("participant %d has no wallet", i)
		}
		wallets = append(wallets, wallet)
		names = append(names, strings.TrimSpace(p.Name))
	}
	return wallets, names, nil
}
