package cmd

import (
	"github.com/spf13/cobra"

	"github.com/scribeworks/scribe/internal/vecstore"
)

var auditRepair bool

var auditCmd = &cobra.Command{
	Use:   "audit <module>",
	Short: "Reconcile a module's chunk records against its vectors",
	Long: `Audit detects records whose vector is missing (the residue of a crash
between the record and vector writes) and vectors with no referencing
record. With --repair, missing vectors are re-embedded and orphans deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditRepair, "repair", false, "repair the inconsistencies found")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	moduleKey := args[0]

	ctx := cmd.Context()
	c, closeCore, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer closeCore()

	report, err := c.ingestor.AuditModule(ctx, moduleKey, auditRepair)
	if err != nil {
		return err
	}

	vectorCount, err := c.vectors.Count(ctx, vecstore.Filter{ModuleKey: moduleKey})
	if err != nil {
		return err
	}

	cmd.Printf("module %s: %d records, %d vectors\n", moduleKey, report.Records, vectorCount)
	cmd.Printf("missing vectors: %d, orphan vectors: %d\n",
		len(report.MissingVectors), len(report.OrphanVectors))
	if auditRepair {
		cmd.Printf("repaired: %d, orphans deleted: %d\n",
			report.RepairedVectors, report.DeletedOrphans)
	}
	return nil
}
