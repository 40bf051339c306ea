package config

import (
	"fmt"
	"time"

	"github.com/Veraticus/kasa/internal/classification"
	"github.com/Veraticus/kasa/internal/common"
	"github.com/Veraticus/kasa/internal/gateway"
	"github.com/Veraticus/kasa/internal/llm"
	"github.com/Veraticus/kasa/internal/notify"
	"github.com/Veraticus/kasa/internal/statement"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SetDefaults registers the default value of every key kasa reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.path", DefaultDatabasePath)

	v.SetDefault("statement.format", "auto")
	v.SetDefault("statement.sheet", "hesaphareketleri")
	v.SetDefault("statement.transfer_tag", statement.DefaultTransferTag)

	v.SetDefault("engine.enter_unowed", false)
	v.SetDefault("engine.notify_each", false)

	v.SetDefault("llm.provider", "openrouter")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.rate_limit", 30)
	v.SetDefault("llm.cache_ttl", 24*time.Hour)
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("gateway.base_url", "http://localhost:3000")
	v.SetDefault("gateway.timeout", 3*time.Minute)

	v.SetDefault("twilio.base_url", notify.DefaultBaseURL)

	v.SetDefault("server.addr", ":3987")
	v.SetDefault("server.uploads_dir", DefaultUploadsDir)

	v.SetDefault("status.backend", "sqlite")
	v.SetDefault("status.redis_url", "localhost:6379")

	v.SetDefault("sheets.token_file", DefaultTokenFile)
}

// Statement returns the statement reader options.
func Statement(v *viper.Viper) statement.Options {
	opts := statement.DefaultOptions()
	opts.Sheet = v.GetString("statement.sheet")
	if tag := v.GetString("statement.transfer_tag"); tag != "" {
		opts.TransferTag = tag
	}
	return opts
}

// StatementFormat returns the configured format, empty for auto-detection.
func StatementFormat(v *viper.Viper) statement.Format {
	f := v.GetString("statement.format")
	if f == "" || f == "auto" {
		return ""
	}
	return statement.Format(f)
}

// LLM returns the extraction client configuration.
func LLM(v *viper.Viper) llm.Config {
	return llm.Config{
		Provider:   v.GetString("llm.provider"),
		APIKey:     v.GetString("llm.api_key"),
		Model:      v.GetString("llm.model"),
		BaseURL:    v.GetString("llm.base_url"),
		MaxRetries: v.GetInt("llm.max_retries"),
		RetryDelay: v.GetDuration("llm.retry_delay"),
		RateLimit:  v.GetInt("llm.rate_limit"),
		CacheTTL:   v.GetDuration("llm.cache_ttl"),
		Timeout:    v.GetDuration("llm.timeout"),
	}
}

// Gateway returns the ledger gateway configuration.
func Gateway(v *viper.Viper) gateway.Config {
	return gateway.Config{
		BaseURL: v.GetString("gateway.base_url"),
		Token:   v.GetString("gateway.token"),
		Timeout: v.GetDuration("gateway.timeout"),
	}
}

// Twilio returns the WhatsApp notifier configuration.
func Twilio(v *viper.Viper) notify.Config {
	return notify.Config{
		AccountSID: v.GetString("twilio.account_sid"),
		AuthToken:  v.GetString("twilio.auth_token"),
		From:       v.GetString("twilio.from"),
		To:         v.GetString("twilio.to"),
		BaseURL:    v.GetString("twilio.base_url"),
	}
}

// TwilioConfigured reports whether any Twilio credential is set.
func TwilioConfigured(v *viper.Viper) bool {
	return v.GetString("twilio.account_sid") != "" || v.GetString("twilio.auth_token") != ""
}

// FeeSchedule returns the default schedule with any fees.* overrides applied.
func FeeSchedule(v *viper.Viper) (classification.FeeSchedule, error) {
	fees := classification.DefaultFeeSchedule()

	lists := []struct {
		dst *[]decimal.Decimal
		key string
	}{
		{key: "fees.written_exam", dst: &fees.WrittenExam},
		{key: "fees.practical_exam", dst: &fees.PracticalExam},
	}
	for _, l := range lists {
		if !v.IsSet(l.key) {
			continue
		}
		values, err := decimals(v.GetStringSlice(l.key))
		if err != nil {
			return fees, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, l.key, err)
		}
		*l.dst = values
	}

	singles := []struct {
		dst *decimal.Decimal
		key string
	}{
		{key: "fees.document", dst: &fees.DocumentFee},
		{key: "fees.failed_candidate_training", dst: &fees.FailedCandidateTraining},
		{key: "fees.installment_increment", dst: &fees.InstallmentIncrement},
		{key: "fees.installment_min", dst: &fees.InstallmentMin},
		{key: "fees.installment_max", dst: &fees.InstallmentMax},
	}
	for _, s := range singles {
		if !v.IsSet(s.key) {
			continue
		}
		d, err := decimal.NewFromString(v.GetString(s.key))
		if err != nil {
			return fees, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, s.key, err)
		}
		*s.dst = d
	}

	if err := fees.Validate(); err != nil {
		return fees, err
	}
	return fees, nil
}

func decimals(values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(values))
	for _, s := range values {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
