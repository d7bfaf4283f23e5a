// Package hcl loads item declarations written in HCL.
//
// A model file holds item, container, group and group_container blocks
// labelled by the item's full name:
//
//	container "DB" {
//	  version = "1.0"
//
//	  handler "sql" {
//	    dsn     = env.DATABASE_URL
//	    install = "CREATE DATABASE app"
//	  }
//	}
//
//	item "Table1" {
//	  version   = "1.0"
//	  container = "DB"
//	  requires  = ["?Extensions"]
//
//	  previous_name "Table0" {
//	    version = "0.9"
//	  }
//	}
//
// Expressions may read environment variables through the env object.
package hcl
