// Package config provides configuration parsing for rxstore tools.
//
// The configuration is stored in rxstore.json in the working directory or
// one of its parents. This package handles loading, saving, and validating
// configuration.
//
// # Configuration File Structure
//
//	{
//	  "database": "app",
//	  "table": "settings",
//	  "adapter": "indexed",
//	  "backend": "sqlite",
//	  "sqlite": {
//	    "path": "rxstore.db"
//	  },
//	  "s3": {
//	    "bucket": "my-bucket",
//	    "prefix": "rxstore/",
//	    "region": "us-east-1"
//	  },
//	  "hub": {
//	    "listen": ":7420",
//	    "url": "http://localhost:7420"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Backend:", cfg.Backend)
package config
