package server

import (
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Config carries the service and tree settings.
type Config struct {
	// Port is the TCP port the service listens on.
	Port int
	// SecretHash, when set, is a bcrypt hash every request must present
	// the preimage of. Empty disables auth.
	SecretHash string

	Order          int
	NodeSize       int
	CacheSize      int
	FileName       string
	HeaderFileName string
	WordsFileName  string
}

// DefaultConfig returns the dictionary service defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:           2333,
		Order:          8,
		NodeSize:       256,
		CacheSize:      4,
		FileName:       "words.flraf",
		HeaderFileName: "words.hdr",
		WordsFileName:  "words.txt",
	}
}

// LoadConfig reads an INI config file over the defaults.
//
//	[server]
//	port        = 2333
//	secret_hash =
//
//	[btree]
//	order      = 8
//	node_size  = 256
//	cache_size = 4
//	file       = words.flraf
//	header     = words.hdr
//	words      = words.txt
func LoadConfig(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config %s", path)
	}

	config := DefaultConfig()
	serverSection := file.Section("server")
	config.Port = serverSection.Key("port").MustInt(config.Port)
	config.SecretHash = serverSection.Key("secret_hash").MustString(config.SecretHash)

	treeSection := file.Section("btree")
	config.Order = treeSection.Key("order").MustInt(config.Order)
	config.NodeSize = treeSection.Key("node_size").MustInt(config.NodeSize)
	config.CacheSize = treeSection.Key("cache_size").MustInt(config.CacheSize)
	config.FileName = treeSection.Key("file").MustString(config.FileName)
	config.HeaderFileName = treeSection.Key("header").MustString(config.HeaderFileName)
	config.WordsFileName = treeSection.Key("words").MustString(config.WordsFileName)
	return config, nil
}
