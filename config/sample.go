package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

var sampleComments = map[string]string{
	"database":                    "Target database.",
	"database.dialect":            "sqlserver, oracle, postgres, mysql or sqlite",
	"database.dsn":                "Connection string. Leave empty to read it from dsn_env.",
	"database.statement_timeout":  "Bound on every insert and trigger statement. 0 disables it.",
	"data_dir":                    "Directory of the CSV files, or s3://bucket/prefix.",
	"compression":                 "gz, zst, lz4 or empty. Appended to every file name.",
	"storage":                     "Object storage used when data_dir is an s3:// URL.",
	"load.batch_sizes":            "Per entity overrides, e.g. orders: 2000",
	"load.skip_triggers":          "Load without suspending any trigger.",
	"load.resolve_order_dates":    "Copy each order's date onto its order items.",
	"load.resume":                 "Skip rows committed by a previous failed run.",
	"load.max_batches_per_second": "Throttle batch submission. 0 disables it.",
	"generate":                    "Row counts used by `shopload generate`.",
	"generate.seed":               "0 seeds from the clock.",
	"generate.cart_max_attempts":  "Cart sampling budget. 0 means twice cart_items.",
	"generate.strict":             "Fail instead of warn when the cart comes up short.",
	"log.level":                   "debug, info, warn or error",
	"log.format":                  "text or json",
}

// WriteSample writes the default configuration as commented YAML.
func WriteSample(w io.Writer) error {
	var doc yaml.Node
	if err := doc.Encode(Default()); err != nil {
		return fmt.Errorf("encode sample config: %w", err)
	}
	annotate(&doc, "")
	doc.HeadComment = "# shopload configuration. Every key can also be set with a SHOPLOAD_ variable,\n# e.g. SHOPLOAD_DATABASE_DSN."

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return enc.Close()
}

// annotate attaches sampleComments to the keys of a mapping node.
func annotate(n *yaml.Node, prefix string) {
	if n.Kind == yaml.DocumentNode {
		for _, c := range n.Content {
			annotate(c, prefix)
		}
		return
	}
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		path := key.Value
		if prefix != "" {
			path = prefix + "." + key.Value
		}
		if c, ok := sampleComments[path]; ok {
			key.HeadComment = "# " + c
		}
		annotate(val, path)
	}
}
