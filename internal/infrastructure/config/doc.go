// Package config provides configuration loading for Aegis Core.
//
// Configuration is loaded in three layers, later layers overriding earlier:
//
//  1. Hardcoded defaults (defaultConfig)
//  2. YAML file values (config.yaml)
//  3. Environment variables (AEGIS_* pattern)
//
// Secrets (the metrics token in particular) should always be supplied via
// environment variables rather than stored in the YAML file.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, ...})
//
// All loaded configurations are validated before being returned; a Config
// obtained from Load is always internally consistent.
package config
