package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/policyworks/quotaledger/internal/metrics"
	"github.com/policyworks/quotaledger/internal/observability"
	"github.com/policyworks/quotaledger/internal/output"
	"github.com/policyworks/quotaledger/internal/rules"
)

var (
	checkRule    string
	checkProfile string
	checkWords   []string
	checkType    string
	checkDevice  string
	checkUse     bool
	checkRules   string
)

// checkResult is what check reports for one evaluation.
type checkResult struct {
	RuleID   string `json:"rule_id"`
	Rule     string `json:"rule"`
	Approved bool   `json:"approved"`
	Charged  bool   `json:"charged"`
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate one request against a configured rule",
	Long: `Evaluate one request against a configured rule.

Quota rules are only read unless --use is given. With --use an approved
request is charged, exactly as a host would do after serving it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		req, err := checkRequest()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		set, err := loadRuleSet(cmd.Context(), cfg, checkRules)
		if err != nil {
			return err
		}
		defer set.Close() // nolint:errcheck // best-effort cleanup

		rule, ok := set.Get(checkRule)
		if !ok {
			return fmt.Errorf("rule %q is not configured", checkRule)
		}

		start := time.Now()
		result := checkResult{RuleID: rule.ID(), Rule: rule.Name()}
		qr, isQuota := rule.(rules.QuotaRule)
		switch {
		case isQuota && !checkUse:
			if req.Profile == nil {
				return rules.ErrNoProfile
			}
			atQuota, err := qr.AtQuota(cmd.Context(), *req.Profile)
			if err != nil {
				return err
			}
			result.Approved = !atQuota
		case isQuota:
			approved, err := qr.ApproveRequest(cmd.Context(), req)
			if err != nil {
				return err
			}
			result.Approved = approved
			if approved {
				if err := qr.UseQuota(cmd.Context(), req); err != nil {
					return err
				}
				result.Charged = true
			}
		default:
			approved, err := rule.ApproveRequest(cmd.Context(), req)
			if err != nil {
				return err
			}
			result.Approved = approved
		}
		metrics.RecordRuleEvaluation(rule.Name(), result.Approved, time.Since(start))

		observability.CLILogger.Debug("Rule evaluated",
			zap.String("rule_id", result.RuleID),
			zap.Bool("approved", result.Approved),
			zap.Bool("charged", result.Charged))

		return writeCheckResult(cmd, format, result)
	},
}

func checkRequest() (rules.Request, error) {
	req := rules.Request{Type: rules.RequestType(strings.TrimSpace(checkType))}
	if d := strings.TrimSpace(checkDevice); d != "" {
		device, err := hex.DecodeString(d)
		if err != nil {
			return rules.Request{}, fmt.Errorf("--device must be hex: %w", err)
		}
		req.DeviceID = device
	}
	if p := strings.TrimSpace(checkProfile); p != "" || len(checkWords) > 0 {
		id, err := hex.DecodeString(p)
		if err != nil {
			return rules.Request{}, fmt.Errorf("--profile must be hex: %w", err)
		}
		req.Profile = &rules.ProfileInfo{ID: id, Words: checkWords}
	}
	return req, nil
}

func writeCheckResult(cmd *cobra.Command, format output.Format, result checkResult) error {
	w := cmd.OutOrStdout()
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	verdict := "DENIED"
	if result.Approved {
		verdict = "APPROVED"
	}
	if result.Charged {
		verdict += " (charged)"
	}
	_, err := fmt.Fprintf(w, "%s [%s]: %s\n", result.RuleID, result.Rule, verdict)
	return err
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	checkCmd.Flags().StringVar(&checkRule, "rule", "", "Rule ID to evaluate")
	checkCmd.Flags().StringVar(&checkProfile, "profile", "", "Profile ID (hex)")
	checkCmd.Flags().StringSliceVar(&checkWords, "words", nil, "Profile words")
	checkCmd.Flags().StringVar(&checkType, "type", "", "Request type")
	checkCmd.Flags().StringVar(&checkDevice, "device", "", "Device ID (hex)")
	checkCmd.Flags().BoolVar(&checkUse, "use", false, "Charge the request when approved")
	checkCmd.Flags().StringVar(&checkRules, "rules", "", "Rule file (YAML list) replacing the configured rules")
	_ = checkCmd.MarkFlagRequired("rule")
}
