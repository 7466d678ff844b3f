package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-risk-service/internal/config"
	"github.com/kjstillabower/climate-risk-service/internal/service"
	"github.com/kjstillabower/climate-risk-service/internal/store"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
)

const newUserPasswordEnv = "NEW_USER_PASSWORD"

func newPredictCmd() *cobra.Command {
	var (
		form   validation.PredictionForm
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a city without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := service.NewPredictionService(service.PredictionConfig{Logger: zap.NewNop()})
			a, err := svc.Assess(cmd.Context(), form, nil)
			var fe validation.FieldErrors
			if errors.As(err, &fe) {
				return fmt.Errorf("invalid input: %s", fe.Error())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(a)
			}
			fmt.Fprintf(out, "%s: %s risk (%.1f%%)\n", a.City, a.RiskLevel, a.RiskScore)
			if len(a.RiskFactors) > 0 {
				fmt.Fprintln(out, "Risk factors:")
				for _, f := range a.RiskFactors {
					fmt.Fprintf(out, "  - %s\n", f)
				}
			}
			fmt.Fprintln(out, "Recommendations:")
			for _, r := range a.Recommendations {
				fmt.Fprintf(out, "  - %s\n", r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&form.City, "city", "", "city name")
	cmd.Flags().StringVar(&form.Population, "population", "", "population (1,000 to 10,000,000)")
	cmd.Flags().StringVar(&form.TemperatureIncrease, "temperature-increase", "", "expected warming in degrees C (0.1 to 5.0)")
	cmd.Flags().StringVar(&form.UrbanDensity, "density", "medium", "urban density: low, medium or high")
	cmd.Flags().StringVar(&form.Infrastructure, "infrastructure", "moderate", "infrastructure age: new, moderate or aging")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full assessment as JSON")
	return cmd
}

func newCreateUserCmd() *cobra.Command {
	var (
		name, email string
		admin       bool
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account in the postgres database; the password is read from " + newUserPasswordEnv,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(newUserPasswordEnv)
			if password == "" {
				return fmt.Errorf("%s must be set", newUserPasswordEnv)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseDriver == store.DriverMemory {
				return errors.New("create-user needs a persistent database: the memory driver is discarded when the command exits; set database.driver to postgres (or DATABASE_DRIVER/DATABASE_URL)")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("store: %w", err)
			}
			defer st.Close()

			u, err := service.NewAccountService(st, zap.NewNop()).CreateUser(ctx, name, email, password, admin)
			if err != nil {
				return err
			}
			role := "user"
			if u.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %d <%s>\n", role, u.ID, strings.ToLower(u.Email))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator access")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
