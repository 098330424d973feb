package engine

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/commission_fee"
	"github.com/rxtech-lab/argo-backtree/internal/backtest/engine/engine_v1/datasource"
	"github.com/rxtech-lab/argo-backtree/internal/tree"
	"github.com/rxtech-lab/argo-backtree/internal/utils"
	"github.com/rxtech-lab/argo-backtree/internal/version"
	"github.com/rxtech-lab/argo-backtree/pkg/errors"
	"gopkg.in/yaml.v3"
)

type BacktestEngineV1Config struct {
	InitialCapital   float64                    `yaml:"initial_capital" json:"initial_capital" validate:"gte=0" jsonschema:"title=Initial Capital,description=Cash funded into the root strategy at the first tick,minimum=0"`
	Broker           commission_fee.Broker      `yaml:"broker" json:"broker" validate:"omitempty,oneof=interactive_broker zero_commission percentage" jsonschema:"title=Broker,description=The broker to use for commission calculations"`
	FeeRate          float64                    `yaml:"fee_rate" json:"fee_rate,omitempty" validate:"gte=0,lt=1" jsonschema:"title=Fee Rate,description=Fraction of traded value charged by the percentage broker,minimum=0"`
	StartTime        optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start time for the backtest period"`
	EndTime          optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end time for the backtest period"`
	Interval         datasource.Interval        `yaml:"interval" json:"interval,omitempty" validate:"omitempty,oneof=1m 5m 15m 30m 1h 4h 6h 8h 12h 1d 1w" jsonschema:"title=Interval,description=Resample prices to the last close of each bucket"`
	IntegerPositions bool                       `yaml:"integer_positions" json:"integer_positions,omitempty" jsonschema:"title=Integer Positions,description=Round every position to whole units"`
	DecimalPrecision *int                       `yaml:"decimal_precision" json:"decimal_precision,omitempty" validate:"omitempty,gte=-1" jsonschema:"title=Decimal Precision,description=Decimals positions are truncated to. Unset or -1 keeps fractional positions,minimum=-1"`
	AllowLeverage    bool                       `yaml:"allow_leverage" json:"allow_leverage,omitempty" jsonschema:"title=Allow Leverage,description=Let buys spend more cash than the strategy holds"`
	AllowShort       bool                       `yaml:"allow_short" json:"allow_short,omitempty" jsonschema:"title=Allow Short,description=Let instrument positions go negative"`
	Tolerance        float64                    `yaml:"tolerance" json:"tolerance,omitempty" validate:"gte=0" jsonschema:"title=Tolerance,description=Absolute epsilon used for zero and equality checks,minimum=0"`
	SkipInvariants   bool                       `yaml:"skip_invariants" json:"skip_invariants,omitempty" jsonschema:"title=Skip Invariants,description=Stop verifying capital conservation and weights after every tick"`
	Parallelism      int                        `yaml:"parallelism" json:"parallelism,omitempty" validate:"gte=0" jsonschema:"title=Parallelism,description=Maximum simulations run at once. 0 removes the limit,minimum=0"`
	EngineVersion    string                     `yaml:"engine_version" json:"engine_version,omitempty" jsonschema:"title=Engine Version,description=Minimum engine version this configuration was written for"`
	ExportCSV        bool                       `yaml:"export_csv" json:"export_csv,omitempty" jsonschema:"title=Export CSV,description=Also write the result tables as CSV files"`
	AuxTables        map[string]string          `yaml:"aux_tables" json:"aux_tables,omitempty" validate:"dive,keys,required,endkeys,required" jsonschema:"title=Auxiliary Tables,description=Named side tables (time column value files) loaded next to the prices"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestEngineV1Config
func (c *BacktestEngineV1Config) UnmarshalYAML(value *yaml.Node) error {
	type Config struct {
		InitialCapital   float64               `yaml:"initial_capital"`
		Broker           commission_fee.Broker `yaml:"broker"`
		FeeRate          float64               `yaml:"fee_rate"`
		StartTime        *time.Time            `yaml:"start_time"`
		EndTime          *time.Time            `yaml:"end_time"`
		Interval         datasource.Interval   `yaml:"interval"`
		IntegerPositions bool                  `yaml:"integer_positions"`
		DecimalPrecision *int                  `yaml:"decimal_precision"`
		AllowLeverage    bool                  `yaml:"allow_leverage"`
		AllowShort       bool                  `yaml:"allow_short"`
		Tolerance        float64               `yaml:"tolerance"`
		SkipInvariants   bool                  `yaml:"skip_invariants"`
		Parallelism      int                   `yaml:"parallelism"`
		EngineVersion    string                `yaml:"engine_version"`
		ExportCSV        bool                  `yaml:"export_csv"`
		AuxTables        map[string]string     `yaml:"aux_tables"`
	}

	var config Config
	if err := value.Decode(&config); err != nil {
		return err
	}

	c.InitialCapital = config.InitialCapital
	c.Broker = config.Broker
	c.FeeRate = config.FeeRate
	c.Interval = config.Interval
	c.IntegerPositions = config.IntegerPositions
	c.AllowLeverage = config.AllowLeverage
	c.AllowShort = config.AllowShort
	c.Tolerance = config.Tolerance
	c.SkipInvariants = config.SkipInvariants
	c.Parallelism = config.Parallelism
	c.EngineVersion = config.EngineVersion
	c.ExportCSV = config.ExportCSV
	c.AuxTables = config.AuxTables

	c.StartTime = optional.None[time.Time]()
	if config.StartTime != nil {
		c.StartTime = optional.Some(*config.StartTime)
	}

	c.EndTime = optional.None[time.Time]()
	if config.EndTime != nil {
		c.EndTime = optional.Some(*config.EndTime)
	}

	c.DecimalPrecision = config.DecimalPrecision

	return nil
}

// MarshalYAML writes unset times as missing keys so the output loads back through UnmarshalYAML.
func (c BacktestEngineV1Config) MarshalYAML() (interface{}, error) {
	type Config struct {
		InitialCapital   float64               `yaml:"initial_capital"`
		Broker           commission_fee.Broker `yaml:"broker"`
		FeeRate          float64               `yaml:"fee_rate,omitempty"`
		StartTime        *time.Time            `yaml:"start_time,omitempty"`
		EndTime          *time.Time            `yaml:"end_time,omitempty"`
		Interval         datasource.Interval   `yaml:"interval,omitempty"`
		IntegerPositions bool                  `yaml:"integer_positions"`
		DecimalPrecision *int                  `yaml:"decimal_precision,omitempty"`
		AllowLeverage    bool                  `yaml:"allow_leverage"`
		AllowShort       bool                  `yaml:"allow_short"`
		Tolerance        float64               `yaml:"tolerance"`
		SkipInvariants   bool                  `yaml:"skip_invariants"`
		Parallelism      int                   `yaml:"parallelism"`
		EngineVersion    string                `yaml:"engine_version,omitempty"`
		ExportCSV        bool                  `yaml:"export_csv"`
		AuxTables        map[string]string     `yaml:"aux_tables,omitempty"`
	}

	out := Config{
		InitialCapital:   c.InitialCapital,
		Broker:           c.Broker,
		FeeRate:          c.FeeRate,
		Interval:         c.Interval,
		IntegerPositions: c.IntegerPositions,
		DecimalPrecision: c.DecimalPrecision,
		AllowLeverage:    c.AllowLeverage,
		AllowShort:       c.AllowShort,
		Tolerance:        c.Tolerance,
		SkipInvariants:   c.SkipInvariants,
		Parallelism:      c.Parallelism,
		EngineVersion:    c.EngineVersion,
		ExportCSV:        c.ExportCSV,
		AuxTables:        c.AuxTables,
	}

	if c.StartTime.IsSome() {
		start := c.StartTime.Unwrap()
		out.StartTime = &start
	}

	if c.EndTime.IsSome() {
		end := c.EndTime.Unwrap()
		out.EndTime = &end
	}

	return out, nil
}

// Validate checks field ranges, the time window and the engine version.
func (c *BacktestEngineV1Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest configuration", err)
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "end time %s is before start time %s",
			c.EndTime.Unwrap().Format(time.RFC3339), c.StartTime.Unwrap().Format(time.RFC3339))
	}

	return version.CheckVersionCompatibility(version.GetVersion(), c.EngineVersion)
}

// Precision is the lot precision handed to the tree. Integer positions win over decimal_precision,
// and positions stay fractional when neither is set.
func (c *BacktestEngineV1Config) Precision() int {
	if c.IntegerPositions {
		return 0
	}

	if c.DecimalPrecision == nil {
		return utils.FractionalPrecision
	}

	return *c.DecimalPrecision
}

// TreeConfig translates the engine settings into the numeric configuration of one tree.
func (c *BacktestEngineV1Config) TreeConfig() tree.Config {
	cfg := tree.DefaultConfig()
	cfg.Precision = c.Precision()
	cfg.AllowLeverage = c.AllowLeverage
	cfg.AllowShort = c.AllowShort

	if c.Tolerance > 0 {
		cfg.Tolerance = c.Tolerance
	}

	if c.Broker != "" {
		cfg.Fee = commission_fee.GetCommissionFeeHandler(c.Broker, c.FeeRate)
	}

	return cfg
}

// GenerateSchema generates a JSON schema for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}

			if strings.Contains(t.String(), "commission_fee.Broker") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: commission_fee.AllBrokers,
				}
			}

			if strings.Contains(t.String(), "datasource.Interval") {
				return &jsonschema.Schema{
					Type: "string",
					Enum: datasource.AllIntervals,
				}
			}

			return nil
		},
	}

	// Generate schema from BacktestEngineV1Config struct
	schema := reflector.Reflect(c)

	// Set schema metadata
	schema.Title = "backtest-engine-v1-config"
	schema.Description = "Configuration schema for BacktestEngineV1"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestEngineV1Config
func (c *BacktestEngineV1Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

func TestConfig(startTime time.Time, endTime time.Time, broker commission_fee.Broker) BacktestEngineV1Config {
	return BacktestEngineV1Config{
		InitialCapital:   10000,
		Broker:           broker,
		StartTime:        optional.Some(startTime),
		EndTime:          optional.Some(endTime),
		Parallelism:      1,
	}
}

// EmptyConfig returns a BacktestEngineV1Config with default values
func EmptyConfig() BacktestEngineV1Config {
	return BacktestEngineV1Config{
		InitialCapital:   0,
		Broker:           commission_fee.BrokerInteractiveBroker,
		StartTime:        optional.None[time.Time](),
		EndTime:          optional.None[time.Time](),
		Tolerance:        tree.DefaultTolerance,
	}
}
