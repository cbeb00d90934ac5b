package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"permitline/internal/app"
	"permitline/internal/domain"
	"permitline/internal/engine"
	"permitline/internal/export"
	"permitline/internal/preview"
	"permitline/internal/signature"
)

func parseDocTypeFlag(raw string) (domain.DocType, error) {
	dt, ok := domain.ParseDocType(raw)
	if !ok {
		return "", fmt.Errorf("unknown doc type %q (Work, HighTension, GasLine)", raw)
	}
	return dt, nil
}

func permitCmd() *cobra.Command {
	p := &cobra.Command{Use: "permit", Short: "Manage permits"}
	p.AddCommand(permitCreateCmd())
	p.AddCommand(permitShowCmd())
	p.AddCommand(permitListCmd())
	p.AddCommand(permitLatestCmd())
	p.AddCommand(permitHeaderCmd())
	p.AddCommand(permitAnswerCmd())
	p.AddCommand(permitFieldCmd())
	p.AddCommand(permitAuthorizeCmd())
	p.AddCommand(permitSwitchCmd())
	p.AddCommand(permitAuditCmd())
	p.AddCommand(permitStatsCmd())
	return p
}

func permitCreateCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft permit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDocTypeFlag(docType)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.CreatePermit(ctx, dt, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&docType, "type", string(domain.DocWork), "permit type")
	return cmd
}

func permitShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <permit-id>",
		Short: "Show a permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.GetPermit(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func permitListCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permits, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var dt domain.DocType
			if docType != "" {
				var err error
				if dt, err = parseDocTypeFlag(docType); err != nil {
					return err
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListPermits(ctx, dt)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Number", "Status", "Closure", "Requester", "Updated"})
				for _, p := range items {
					closure := ""
					if p.Closure != nil {
						closure = string(p.Closure.Status)
					}
					tw.AppendRow(table.Row{p.PermitID, p.DocType, p.Header.PermitNumber, p.Status, closure, p.Header.PermitRequester, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&docType, "type", "", "permit type filter")
	return cmd
}

func permitLatestCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest draft of a permit type",
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDocTypeFlag(docType)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, ok, err := rt.Engine.LatestDraft(ctx, dt)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no %s draft", dt)
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&docType, "type", string(domain.DocWork), "permit type")
	return cmd
}

func permitHeaderCmd() *cobra.Command {
	var v struct {
		requester, approver1, approver2, safetyManager string
		issueDate, returnDate, certificate, number     string
	}
	cmd := &cobra.Command{
		Use:   "header <permit-id>",
		Short: "Patch header fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := engine.HeaderPatch{
				PermitRequester:    optionalString(cmd, "requester", v.requester),
				PermitApprover1:    optionalString(cmd, "approver1", v.approver1),
				PermitApprover2:    optionalString(cmd, "approver2", v.approver2),
				SafetyManager:      optionalString(cmd, "safety-manager", v.safetyManager),
				PermitIssueDate:    optionalString(cmd, "issue-date", v.issueDate),
				ExpectedReturnDate: optionalString(cmd, "return-date", v.returnDate),
				CertificateNumber:  optionalString(cmd, "certificate", v.certificate),
				PermitNumber:       optionalString(cmd, "number", v.number),
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.UpdateHeader(ctx, args[0], role, patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Header)
			})
		},
	}
	cmd.Flags().StringVar(&v.requester, "requester", "", "permit requester")
	cmd.Flags().StringVar(&v.approver1, "approver1", "", "first approver")
	cmd.Flags().StringVar(&v.approver2, "approver2", "", "second approver")
	cmd.Flags().StringVar(&v.safetyManager, "safety-manager", "", "safety manager")
	cmd.Flags().StringVar(&v.issueDate, "issue-date", "", "issue date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&v.returnDate, "return-date", "", "expected return date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&v.certificate, "certificate", "", "certificate number")
	cmd.Flags().StringVar(&v.number, "number", "", "permit number")
	return cmd
}

func permitAnswerCmd() *cobra.Command {
	var section, row, answer, remarks string
	cmd := &cobra.Command{
		Use:   "answer <permit-id>",
		Short: "Record a checklist answer (yes, no, na or empty)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.SetAnswer(ctx, engine.AnswerOptions{
					PermitID: args[0],
					Role:     role,
					Section:  section,
					RowID:    row,
					Answer:   domain.Answer(strings.ToLower(answer)),
					Remarks:  optionalString(cmd, "remarks", remarks),
				})
				if err != nil {
					return err
				}
				st, _ := p.Step(section)
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "section key")
	cmd.Flags().StringVar(&row, "row", "", "row id")
	cmd.Flags().StringVar(&answer, "answer", "", "yes, no, na or empty")
	cmd.Flags().StringVar(&remarks, "remarks", "", "remarks")
	_ = cmd.MarkFlagRequired("section")
	_ = cmd.MarkFlagRequired("row")
	return cmd
}

func permitFieldCmd() *cobra.Command {
	var section, field, value string
	cmd := &cobra.Command{
		Use:   "field <permit-id>",
		Short: "Write a section field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.SetField(ctx, args[0], role, section, field, value)
				if err != nil {
					return err
				}
				st, _ := p.Step(section)
				return printJSONOrTable(st.Fields)
			})
		},
	}
	cmd.Flags().StringVar(&section, "section", "basicInfo", "section key")
	cmd.Flags().StringVar(&field, "field", "", "field name")
	cmd.Flags().StringVar(&value, "value", "", "field value")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func permitAuthorizeCmd() *cobra.Command {
	var opts engine.AuthorizationOptions
	var sigFile string
	cmd := &cobra.Command{
		Use:   "authorize <permit-id>",
		Short: "Fill an authorization entry of a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sigFile != "" {
				dataURL, err := readSignature(sigFile)
				if err != nil {
					return err
				}
				opts.SignatureImage = dataURL
			}
			opts.PermitID = args[0]
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				opts.Role = role
				p, err := rt.Engine.SetAuthorization(ctx, opts)
				if err != nil {
					return err
				}
				st, _ := p.Step(opts.Section)
				return printJSONOrTable(st.Authorizations)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Section, "section", "", "section key")
	cmd.Flags().StringVar(&opts.Signatory, "signatory", "", "authorization label, e.g. \"Permit Requester\"")
	cmd.Flags().StringVar(&opts.Name, "name", "", "signatory name")
	cmd.Flags().StringVar(&opts.ContactNo, "contact", "", "contact number")
	cmd.Flags().StringVar(&opts.Date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Time, "time", "", "time (HH:MM)")
	cmd.Flags().StringVar(&sigFile, "signature", "", "signature image file")
	_ = cmd.MarkFlagRequired("section")
	_ = cmd.MarkFlagRequired("signatory")
	return cmd
}

func permitSwitchCmd() *cobra.Command {
	var docType string
	cmd := &cobra.Command{
		Use:   "switch",
		Short: "Resume or create a draft of another permit type",
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, err := parseDocTypeFlag(docType)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, created, err := rt.Engine.SwitchForm(ctx, dt, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"permit": p, "created": created})
			})
		},
	}
	cmd.Flags().StringVar(&docType, "type", "", "destination permit type")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func permitAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <permit-id>",
		Short: "Show the audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				trail, err := rt.Engine.AuditTrail(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(trail)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Role", "From", "To"})
				for _, a := range trail {
					tw.AppendRow(table.Row{a.TS, a.Type, a.Role, a.From, a.To})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func permitStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count permits per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				counts, err := rt.Engine.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(counts)
			})
		},
	}
}

func actionCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "action <permit-id> [action]",
		Short: "Apply a lifecycle action (submit, begin_review, approve, reject, resubmit)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				if list || len(args) == 1 {
					p, err := rt.Engine.GetPermit(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(map[string]any{"status": p.Status, "role": role, "actions": engine.AvailableActions(p, role)})
				}
				action, ok := engine.ParseAction(args[1])
				if !ok {
					return fmt.Errorf("unknown action %q", args[1])
				}
				p, err := rt.Engine.Act(ctx, args[0], role, action)
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", p.PermitID, p.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list the actions available to the role")
	return cmd
}

func closureCmd() *cobra.Command {
	c := &cobra.Command{Use: "closure", Short: "Closure review of approved permits"}
	c.AddCommand(&cobra.Command{
		Use:   "request <permit-id>",
		Short: "Request closure (requester)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.RequestClosure(ctx, args[0], role)
				if err != nil {
					return err
				}
				return printJSONOrTable(p.Closure)
			})
		},
	})
	c.AddCommand(closureDecideCmd())
	return c
}

func closureDecideCmd() *cobra.Command {
	var decision, comments, sigFile string
	var checked []string
	cmd := &cobra.Command{
		Use:   "decide <permit-id>",
		Short: "Approve, reject or request info on a closure (approver or safety)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub := engine.ClosureSubmission{
				Decision: domain.ClosureDecision(decision),
				Comments: comments,
			}
			for _, item := range checked {
				if err := checkItem(&sub.Checklist, item); err != nil {
					return err
				}
			}
			if sigFile != "" {
				dataURL, err := readSignature(sigFile)
				if err != nil {
					return err
				}
				sub.SignatureImage = dataURL
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.DecideClosure(ctx, args[0], role, sub)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"status": p.Status, "closure": p.Closure})
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approve, reject or request_info")
	cmd.Flags().StringVar(&comments, "comments", "", "comments (required unless approving)")
	cmd.Flags().StringVar(&sigFile, "signature", "", "signature image file")
	cmd.Flags().StringSliceVar(&checked, "check", nil, "checked items, or \"all\"")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func checkItem(c *domain.ClosureChecklist, item string) error {
	switch strings.TrimSpace(item) {
	case "all":
		*c = domain.ClosureChecklist{
			WorkCompleted: true, AreaCleaned: true, ToolsRemoved: true, IsolationsRemoved: true,
			GuardsRestored: true, PersonnelWithdrawn: true, EquipmentHandedOver: true,
		}
	case "workCompleted":
		c.WorkCompleted = true
	case "areaCleaned":
		c.AreaCleaned = true
	case "toolsRemoved":
		c.ToolsRemoved = true
	case "isolationsRemoved":
		c.IsolationsRemoved = true
	case "guardsRestored":
		c.GuardsRestored = true
	case "personnelWithdrawn":
		c.PersonnelWithdrawn = true
	case "equipmentHandedOver":
		c.EquipmentHandedOver = true
	default:
		return fmt.Errorf("unknown checklist item %q", item)
	}
	return nil
}

// readSignature turns an image file into the data URL the engine expects.
func readSignature(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, ct)
	}
	return signature.EncodeDataURL(signature.Image{ContentType: ct, Data: data}), nil
}

func commentCmd() *cobra.Command {
	c := &cobra.Command{Use: "comment", Short: "Comment channels between roles"}
	c.AddCommand(commentListCmd())
	c.AddCommand(commentAddCmd())
	c.AddCommand(commentToggleCmd())
	c.AddCommand(commentDeleteCmd())
	c.AddCommand(commentFlagsCmd())
	return c
}

func parseRoleFlag(name, raw string) (domain.Role, error) {
	r, ok := domain.ParseRole(raw)
	if !ok {
		return "", fmt.Errorf("--%s: unknown role %q", name, raw)
	}
	return r, nil
}

func commentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <permit-id>",
		Short: "Show the role's inbound and outbound threads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				inbound, outbound, err := rt.Engine.Threads(ctx, args[0], role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"role": role, "inbound": inbound, "outbound": outbound})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Channel", "#", "Done", "Comment", "Flags"})
				for _, v := range append(inbound, outbound...) {
					channel := fmt.Sprintf("%s→%s", v.Source, v.Target)
					flags := flagSummary(v.Thread.Flags)
					if len(v.Thread.CustomComments) == 0 {
						tw.AppendRow(table.Row{channel, "", "", "", flags})
						continue
					}
					for i, cm := range v.Thread.CustomComments {
						done := ""
						if cm.Checked {
							done = "x"
						}
						tw.AppendRow(table.Row{channel, i, done, cm.Text, flags})
					}
				}
				tw.SetCaption("role %s", role)
				tw.Render()
				return nil
			})
		},
	}
}

func flagSummary(f domain.Flags) string {
	var parts []string
	if f.Urgent {
		parts = append(parts, "urgent")
	}
	if f.SafetyManagerApprovalRequired {
		parts = append(parts, "safety-manager")
	}
	if f.PlannedShutdown {
		parts = append(parts, "shutdown "+f.PlannedShutdownDate)
	}
	return strings.Join(parts, ", ")
}

func commentAddCmd() *cobra.Command {
	var target, text string
	cmd := &cobra.Command{
		Use:   "add <permit-id>",
		Short: "Append a comment to the role's channel towards --to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseRoleFlag("to", target)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				th, err := rt.Engine.AppendComment(ctx, args[0], role, to, text)
				if err != nil {
					return err
				}
				return printJSONOrTable(th)
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target role")
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func commentToggleCmd() *cobra.Command {
	var source, target string
	var index int
	var uncheck bool
	cmd := &cobra.Command{
		Use:   "toggle <permit-id>",
		Short: "Check a comment on the --from→--to channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseRoleFlag("from", source)
			if err != nil {
				return err
			}
			to, err := parseRoleFlag("to", target)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				th, err := rt.Engine.ToggleComment(ctx, args[0], role, from, to, index, !uncheck)
				if err != nil {
					return err
				}
				return printJSONOrTable(th)
			})
		},
	}
	cmd.Flags().StringVar(&source, "from", "", "source role")
	cmd.Flags().StringVar(&target, "to", "", "target role")
	cmd.Flags().IntVar(&index, "index", 0, "comment index")
	cmd.Flags().BoolVar(&uncheck, "uncheck", false, "clear the check instead")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func commentDeleteCmd() *cobra.Command {
	var target string
	var index int
	cmd := &cobra.Command{
		Use:   "delete <permit-id>",
		Short: "Delete a comment from the role's channel towards --to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseRoleFlag("to", target)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				th, err := rt.Engine.DeleteComment(ctx, args[0], role, to, index)
				if err != nil {
					return err
				}
				return printJSONOrTable(th)
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target role")
	cmd.Flags().IntVar(&index, "index", 0, "comment index")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func commentFlagsCmd() *cobra.Command {
	var target string
	var flags domain.Flags
	cmd := &cobra.Command{
		Use:   "flags <permit-id>",
		Short: "Set the flags of the role's channel towards --to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseRoleFlag("to", target)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				role, err := activeRole(ctx, rt)
				if err != nil {
					return err
				}
				th, err := rt.Engine.SetFlags(ctx, args[0], role, to, flags)
				if err != nil {
					return err
				}
				return printJSONOrTable(th.Flags)
			})
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target role")
	cmd.Flags().BoolVar(&flags.Urgent, "urgent", false, "mark urgent")
	cmd.Flags().BoolVar(&flags.SafetyManagerApprovalRequired, "safety-manager-approval", false, "safety manager approval required")
	cmd.Flags().BoolVar(&flags.PlannedShutdown, "planned-shutdown", false, "planned shutdown")
	cmd.Flags().StringVar(&flags.PlannedShutdownDate, "shutdown-date", "", "planned shutdown date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func previewCmd() *cobra.Command {
	p := &cobra.Command{Use: "preview", Short: "Render a printable A4 permit"}
	for _, format := range []string{"html", "pdf"} {
		p.AddCommand(previewFormatCmd(format))
	}
	return p
}

func previewFormatCmd(format string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   format + " <permit-id>",
		Short: "Write the " + strings.ToUpper(format) + " print preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.GetPermit(ctx, args[0])
				if err != nil {
					return err
				}
				doc := preview.Render(p)
				var data []byte
				if format == "pdf" {
					data, err = preview.PDF(doc)
				} else {
					var sheets []string
					sheets, err = preview.LoadStylesheets(workspacePaths(rt.Workspace, rt.Config.Print.Stylesheets))
					if err == nil {
						data, err = preview.HTML(doc, sheets)
					}
				}
				if err != nil {
					return err
				}
				if out == "" {
					out = p.PermitID + "." + format
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <permit-id>."+format+")")
	return cmd
}

func exportCmd() *cobra.Command {
	e := &cobra.Command{Use: "export", Short: "Export permit data"}
	var out, docType string
	reg := &cobra.Command{
		Use:   "register",
		Short: "Write the permit register spreadsheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			var dt domain.DocType
			if docType != "" {
				var err error
				if dt, err = parseDocTypeFlag(docType); err != nil {
					return err
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListPermits(ctx, dt)
				if err != nil {
					return err
				}
				buf, err := export.Register(items)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s (%d permits)\n", out, len(items))
				return nil
			})
		},
	}
	reg.Flags().StringVarP(&out, "output", "o", "permit-register.xlsx", "output file")
	reg.Flags().StringVar(&docType, "type", "", "permit type filter")
	e.AddCommand(reg)
	return e
}
