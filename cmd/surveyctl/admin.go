package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"agrosurvey/internal/app"
	"agrosurvey/internal/auth"
	"agrosurvey/internal/db"

	"github.com/spf13/cobra"
)

const adminPasswordEnv = "SURVEYCTL_ADMIN_PASSWORD"

func newAdminCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage dashboard admin accounts",
	}
	cmd.AddCommand(newAdminCreateCmd(e), newAdminImportCmd(e), newAdminExportCmd(e), newAdminDeactivateCmd(e))
	return cmd
}

// withAuth opens the database and runs fn with an auth service over it.
func withAuth(cmd *cobra.Command, e *env, fn func(*auth.Service) error) error {
	if e.cfg.StoreDriver == app.StoreDriverMemory {
		return errors.New("admin accounts need STORE_DRIVER=postgres")
	}
	conn, err := db.OpenAndMigrate(cmd.Context(), db.PostgresConfig{
		DSN:             e.cfg.DBDSN,
		MaxOpenConns:    e.cfg.DBMaxOpenConns,
		MaxIdleConns:    e.cfg.DBMaxIdleConns,
		ConnMaxLifetime: e.cfg.ConnMaxLifetime(),
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(auth.NewService(conn, auth.ServiceConfig{Logger: e.logger}))
}

func newAdminCreateCmd(e *env) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account",
		Long:  "Create an admin account. The password is read from " + adminPasswordEnv + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv(adminPasswordEnv)
			if strings.TrimSpace(password) == "" {
				return fmt.Errorf("%s is not set", adminPasswordEnv)
			}
			return withAuth(cmd, e, func(svc *auth.Service) error {
				admin, err := svc.CreateAdmin(cmd.Context(), auth.CreateAdminInput{Email: email, FullName: name, Password: password})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %d <%s>\n", admin.ID, admin.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAdminImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.xlsx>",
		Short: "Create admin accounts from a spreadsheet",
		Long:  "Create admin accounts from the first sheet. Columns: email, full_name, password, is_active.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withAuth(cmd, e, func(svc *auth.Service) error {
				report, err := svc.ImportAdminsExcel(cmd.Context(), f)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "rows=%d created=%d failed=%d\n", report.TotalRows, report.SuccessRows, report.FailedRows)
				for _, re := range report.Errors {
					fmt.Fprintf(out, "  row %d %s: %s\n", re.Row, re.Email, re.Error)
				}
				return nil
			})
		},
	}
}

func newAdminExportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "export <out.xlsx>",
		Short: "Write the admin accounts to a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd, e, func(svc *auth.Service) error {
				data, err := svc.ExportAdminsExcel(cmd.Context())
				if err != nil {
					return err
				}
				return os.WriteFile(args[0], data, 0o644)
			})
		},
	}
}

func newAdminDeactivateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <email>",
		Short: "Disable an admin and revoke its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd, e, func(svc *auth.Service) error {
				if err := svc.DeactivateAdmin(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deactivated %s\n", args[0])
				return nil
			})
		},
	}
}
