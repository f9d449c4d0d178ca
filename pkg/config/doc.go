/*
Package config turns a projects.yaml operator file into the types.Project
records the scanner and queue operate on, the way cmd/warren/apply.go turns
a YAML resource file into a client call - parse into a file-shaped struct
first, then translate, so the wire record's yaml tags never leak into
types.Project itself.

	projects.yaml:
	  projects:
	    - name: storefront
	      source_url: git@github.com:acme/storefront.git
	      buckets:
	        - name: rspec:models
	          bucket: [{name: rspec, command: bundle, args: [exec, rspec, spec/models]}]

	set, err := config.LoadProjectSet("projects.yaml")
	project, ok := set.Get("storefront")
*/
package config
