package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrConfiguration marks a configuration that cannot run. Startup treats it as fatal.
var ErrConfiguration = errors.New("configuration error")

var validate = validator.New()

func (c Config) Validate() error {
	var problems []string
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if !contains(c.Analysis.Timeframes, c.Analysis.PrimaryTimeframe) {
		problems = append(problems, "analysis.primary_timeframe must be one of analysis.timeframes")
	}
	if c.Regime.Timeframe != "" && !contains(c.Analysis.Timeframes, c.Regime.Timeframe) {
		problems = append(problems, "regime.timeframe must be one of analysis.timeframes")
	}
	if !(c.Scoring.Level1 > c.Scoring.Level2 && c.Scoring.Level2 > c.Scoring.Level3) {
		problems = append(problems, "scoring thresholds must be strictly descending (level1 > level2 > level3)")
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.DB.DSN) == "" {
		problems = append(problems, "db.dsn is required when storage.driver=postgres")
	}
	if c.Notify.Enabled && c.Notify.Transport == "smtp" && strings.TrimSpace(c.Notify.SMTP.Host) == "" {
		problems = append(problems, "notify.smtp.host is required when notify.transport=smtp")
	}
	if _, err := time.LoadLocation(c.Filter.Timezone); err != nil {
		problems = append(problems, "filter.timezone: "+err.Error())
	}
	for tier, limit := range c.Filter.Quotas {
		switch tier {
		case "LEVEL_1", "LEVEL_2", "LEVEL_3":
		default:
			problems = append(problems, fmt.Sprintf("filter.quotas has unknown tier %q (cap %d)", tier, limit))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}
