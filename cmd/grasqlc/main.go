// grasqlc compiles a GraphQL query against a YAML-described schema and
// prints the generated SQL with its parameters. It exists to exercise the
// host boundary end to end without a database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	grasql "github.com/simple-platform/grasql-sub001"
	"github.com/simple-platform/grasql-sub001/internal/logging"
)

// fileConfig mirrors the engine knobs a config file may set.
type fileConfig struct {
	AggregateFieldSuffix    string            `mapstructure:"aggregate_field_suffix"`
	AggregateNodesFieldName string            `mapstructure:"aggregate_nodes_field_name"`
	PrimaryKeyArgumentName  string            `mapstructure:"primary_key_argument_name"`
	InsertPrefix            string            `mapstructure:"insert_prefix"`
	UpdatePrefix            string            `mapstructure:"update_prefix"`
	DeletePrefix            string            `mapstructure:"delete_prefix"`
	PaginationAliases       map[string]string `mapstructure:"pagination_aliases"`
	MaxCacheSize            int               `mapstructure:"max_cache_size"`
	CacheTTL                time.Duration     `mapstructure:"cache_ttl"`
	MaxQueryDepth           int               `mapstructure:"max_query_depth"`
	LogLevel                string            `mapstructure:"log_level"`
	LogFormat               string            `mapstructure:"log_format"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "grasqlc:", err)
		os.Exit(1)
	}
}

func run() error {
	pflag.String("config", "", "Engine config file (yaml)")
	pflag.String("schema", "", "Schema definition file (yaml, required)")
	pflag.String("query", "", "GraphQL query text (reads stdin when empty and no positional argument)")
	pflag.String("variables", "", "Variables as a JSON object")
	pflag.Bool("parse-only", false, "Print the parse result instead of SQL")
	pflag.Parse()

	fc, err := loadConfig()
	if err != nil {
		return err
	}

	schemaPath, _ := pflag.CommandLine.GetString("schema")
	if schemaPath == "" {
		return fmt.Errorf("--schema is required")
	}
	sf, err := loadSchemaFile(schemaPath)
	if err != nil {
		return err
	}

	cfg := engineConfig(fc)
	cfg.Resolver = newFileResolver(sf).Funcs()
	cfg.Logger = logging.NewLogger(logging.Config{Level: fc.LogLevel, Format: fc.LogFormat})

	if err := grasql.Initialize(cfg); err != nil {
		return err
	}

	query, err := readQuery()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if parseOnly, _ := pflag.CommandLine.GetBool("parse-only"); parseOnly {
		res, err := grasql.ParseQuery(ctx, query)
		if err != nil {
			return err
		}
		return printJSON(res)
	}

	variables, err := readVariables()
	if err != nil {
		return err
	}
	stmt, err := grasql.GenerateSQL(ctx, query, variables, nil)
	if err != nil {
		return err
	}

	fmt.Println(stmt.SQL)
	if len(stmt.Params) > 0 {
		return printJSON(stmt.Params)
	}
	return nil
}

func loadConfig() (fileConfig, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return fileConfig{}, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
	}

	v.SetEnvPrefix("GRASQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var fc fileConfig
	if err := v.UnmarshalExact(
		&fc,
		viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()),
	); err != nil {
		return fileConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return fc, nil
}

func setDefaults(v *viper.Viper) {
	base := grasql.DefaultConfig()
	v.SetDefault("aggregate_field_suffix", base.AggregateFieldSuffix)
	v.SetDefault("aggregate_nodes_field_name", base.AggregateNodesFieldName)
	v.SetDefault("primary_key_argument_name", base.PrimaryKeyArgumentName)
	v.SetDefault("insert_prefix", base.InsertPrefix)
	v.SetDefault("update_prefix", base.UpdatePrefix)
	v.SetDefault("delete_prefix", base.DeletePrefix)
	v.SetDefault("pagination_aliases", base.PaginationAliases)
	v.SetDefault("max_cache_size", base.MaxCacheSize)
	v.SetDefault("cache_ttl", base.CacheTTL)
	v.SetDefault("max_query_depth", base.MaxQueryDepth)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func engineConfig(fc fileConfig) grasql.Config {
	cfg := grasql.DefaultConfig()
	cfg.AggregateFieldSuffix = fc.AggregateFieldSuffix
	cfg.AggregateNodesFieldName = fc.AggregateNodesFieldName
	cfg.PrimaryKeyArgumentName = fc.PrimaryKeyArgumentName
	cfg.InsertPrefix = fc.InsertPrefix
	cfg.UpdatePrefix = fc.UpdatePrefix
	cfg.DeletePrefix = fc.DeletePrefix
	cfg.PaginationAliases = fc.PaginationAliases
	cfg.MaxCacheSize = fc.MaxCacheSize
	cfg.CacheTTL = fc.CacheTTL
	cfg.MaxQueryDepth = fc.MaxQueryDepth
	return cfg
}

func readQuery() (string, error) {
	if q, _ := pflag.CommandLine.GetString("query"); q != "" {
		return q, nil
	}
	if args := pflag.Args(); len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read query from stdin: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no query supplied")
	}
	return string(data), nil
}

func readVariables() (map[string]any, error) {
	raw, _ := pflag.CommandLine.GetString("variables")
	if raw == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, fmt.Errorf("failed to parse --variables: %w", err)
	}
	return vars, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
