package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	aicore "github.com/stake-plus/fitbet/src/ai/core"
	_ "github.com/stake-plus/fitbet/src/ai/providers"
	"github.com/stake-plus/fitbet/src/config"
)

var (
	providersFlag = flag.String("providers", "", "Comma-separated provider list, 'all', or empty for the configured one")
	modeFlag      = flag.String("mode", "goal", "goal|checkin|both")
	modelFlag     = flag.String("model", "", "Override model name")
	trackFlag     = flag.String("track", "cut", "cut|bulk")
	heightFlag    = flag.Float64("height", 180, "Height in cm")
	weightFlag    = flag.Float64("weight", 92, "Start weight in kg")
	waistFlag     = flag.Float64("waist", 98, "Start waist in cm")
	tWeightFlag   = flag.Float64("target-weight", 84, "Target weight in kg")
	tWaistFlag    = flag.Float64("target-waist", 88, "Target waist in cm")
	timeoutFlag   = flag.Duration("timeout", 45*time.Second, "Per-provider timeout")
	maxLenFlag    = flag.Int("max-bytes", 1200, "Maximum bytes of feedback to print per response (0=unlimited)")
)

func main() {
	log.SetFlags(0)
	flag.Parse()
	_ = godotenv.Load()

	aiCfg := config.LoadAIConfig()
	providers := resolveProviders(*providersFlag, aiCfg.Provider)
	if len(providers) == 0 {
		log.Fatal("no providers specified")
	}
	registered := aicore.Registered()
	for _, p := range providers {
		if !slices.Contains(registered, p) {
			log.Fatalf("unknown provider %q; registered: %s", p, strings.Join(registered, ", "))
		}
	}
	mode := strings.ToLower(strings.TrimSpace(*modeFlag))
	if mode != "goal" && mode != "checkin" && mode != "both" {
		log.Fatalf("invalid mode %q: expected goal, checkin, or both", *modeFlag)
	}

	goal := aicore.GoalInput{
		Track:        *trackFlag,
		Height:       *heightFlag,
		StartWeight:  *weightFlag,
		StartWaist:   *waistFlag,
		TargetWeight: *tWeightFlag,
		TargetWaist:  *tWaistFlag,
	}
	for _, provider := range providers {
		if err := runProvider(provider, mode, aiCfg, goal); err != nil {
			log.Printf("[%s] ERROR: %v", provider, err)
		}
	}
}

func runProvider(provider, mode string, aiCfg config.AIConfig, goal aicore.GoalInput) error {
	cfg := aiCfg.Factory()
	cfg.Provider = provider
	cfg.Model = aicore.ResolveModelName(provider, pickFirst(*modelFlag, modelFor(provider, aiCfg)))

	client, err := aicore.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("client init: %w", err)
	}
	advisor := aicore.NewAdvisor(client)

	fmt.Printf("=== %s (%s) ===\n", provider, cfg.Model)
	if mode == "goal" || mode == "both" {
		ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
		v, err := advisor.ValidateGoal(ctx, goal)
		cancel()
		if err != nil {
			fmt.Printf("goal FAIL %v\n", err)
		} else {
			fmt.Printf("goal OK %s (%dms, %d tokens)\n%s\n", v.Verdict, v.LatencyMs, v.Tokens, truncate(v.Feedback, *maxLenFlag))
		}
	}
	if mode == "checkin" || mode == "both" {
		ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
		advice, err := advisor.AnalyzeCheckin(ctx, aicore.CheckinInput{
			Goal:          goal,
			CurrentWeight: goal.StartWeight - 1.5,
			CurrentWaist:  goal.StartWaist - 1,
			History:       []string{fmt.Sprintf("start: %.1f kg, %.1f cm", goal.StartWeight, goal.StartWaist)},
		})
		cancel()
		if err != nil {
			fmt.Printf("checkin FAIL %v\n", err)
		} else {
			fmt.Printf("checkin OK (%dms, %d tokens)\n%s\n", advice.LatencyMs, advice.Tokens, truncate(advice.ProgressAssessment, *maxLenFlag))
			if len(advice.WarningFlags) > 0 {
				fmt.Printf("warnings: %s\n", strings.Join(advice.WarningFlags, "; "))
			}
		}
	}
	return nil
}

// modelFor keeps the configured model only for the configured provider.
func modelFor(provider string, aiCfg config.AIConfig) string {
	if strings.EqualFold(provider, aiCfg.Provider) {
		return aiCfg.Model
	}
	return ""
}

func resolveProviders(raw, configured string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if configured == "" {
			return nil
		}
		return []string{configured}
	}
	if strings.EqualFold(raw, "all") {
		return []string{"openrouter", "anthropic"}
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	var out []string
	seen := map[string]struct{}{}
	for _, p := range parts {
		key := strings.ToLower(strings.TrimSpace(p))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func pickFirst(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:limit]) + "...(truncated)"
}
