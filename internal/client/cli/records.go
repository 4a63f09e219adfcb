package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dmitrijs2005/logsync/internal/client/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// entryFlags describe an entry on the command line. A JSON file is applied
// first; flags that were set override its fields.
type entryFlags struct {
	file          string
	date          string
	role          string
	categoryClass string
	makeModel     string
	registration  string
	flightNumber  string
	departure     string
	destination   string
	route         string
	remarks       string
	conditions    []string
	total         float64
	pic           float64
	night         float64
	crossCountry  float64
	dayLandings   int
	nightLandings int
	flagged       bool
}

func (f *entryFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.file, "file", "f", "", "read the entry as JSON from a file (- for stdin)")
	fs.StringVar(&f.date, "date", "", "flight date (YYYY-MM-DD)")
	fs.StringVar(&f.role, "role", "", "pilot role, e.g. PIC")
	fs.StringVar(&f.categoryClass, "category-class", "", "aircraft category and class, e.g. ASEL")
	fs.StringVar(&f.makeModel, "make-model", "", "aircraft make and model")
	fs.StringVar(&f.registration, "registration", "", "aircraft registration")
	fs.StringVar(&f.flightNumber, "flight-number", "", "flight number")
	fs.StringVar(&f.departure, "from", "", "departure airport")
	fs.StringVar(&f.destination, "to", "", "destination airport")
	fs.StringVar(&f.route, "route", "", "route flown")
	fs.StringVar(&f.remarks, "remarks", "", "remarks")
	fs.StringSliceVar(&f.conditions, "conditions", nil, "flight conditions, comma separated")
	fs.Float64Var(&f.total, "total", 0, "total flight time in hours")
	fs.Float64Var(&f.pic, "pic", 0, "pilot in command time in hours")
	fs.Float64Var(&f.night, "night", 0, "night time in hours")
	fs.Float64Var(&f.crossCountry, "cross-country", 0, "cross-country time in hours")
	fs.IntVar(&f.dayLandings, "day-landings", 0, "day landings")
	fs.IntVar(&f.nightLandings, "night-landings", 0, "night landings")
	fs.BoolVar(&f.flagged, "flagged", false, "flag the entry for review")
}

func (f *entryFlags) apply(fs *pflag.FlagSet, in io.Reader, e *models.Entry) error {
	if f.file != "" {
		r := in
		if f.file != "-" {
			file, err := os.Open(f.file)
			if err != nil {
				return err
			}
			defer file.Close()
			r = file
		}
		if err := json.NewDecoder(r).Decode(e); err != nil {
			return fmt.Errorf("decode entry: %w", err)
		}
	}

	set := func(name string, dst *string, v string) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	setPtr := func(name string, dst **string, v string) {
		if fs.Changed(name) {
			*dst = &v
		}
	}
	setHours := func(name string, dst **float64, v float64) {
		if fs.Changed(name) {
			*dst = &v
		}
	}
	setCount := func(name string, dst **int, v int) {
		if fs.Changed(name) {
			*dst = &v
		}
	}

	set("date", &e.Date, f.date)
	set("role", &e.Role, f.role)
	set("category-class", &e.AircraftCategoryClass, f.categoryClass)
	set("make-model", &e.AircraftMakeModel, f.makeModel)
	set("registration", &e.Registration, f.registration)
	set("from", &e.Departure, f.departure)
	set("to", &e.Destination, f.destination)
	setPtr("flight-number", &e.FlightNumber, f.flightNumber)
	setPtr("route", &e.Route, f.route)
	setPtr("remarks", &e.Remarks, f.remarks)
	setHours("total", &e.FlightTime.Total, f.total)
	setHours("pic", &e.FlightTime.PIC, f.pic)
	setHours("night", &e.FlightTime.Night, f.night)
	setHours("cross-country", &e.FlightTime.CrossCountry, f.crossCountry)
	setCount("day-landings", &e.Performance.DayLandings, f.dayLandings)
	setCount("night-landings", &e.Performance.NightLandings, f.nightLandings)
	if fs.Changed("conditions") {
		e.FlightConditions = f.conditions
	}
	if fs.Changed("flagged") {
		e.Flagged = f.flagged
	}
	if e.FlightConditions == nil {
		e.FlightConditions = []string{}
	}
	return nil
}

func NewAddCommand(o *RootOptions) *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a logbook entry and queue it for sync",
		Example: `  logsync add --date 2024-06-10 --registration F-GKXA --from LFPG --to EGLL --total 1.2
  logsync add -f entry.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var e models.Entry
			if err := f.apply(cmd.Flags(), cmd.InOrStdin(), &e); err != nil {
				return WrapExitError(ExitCommandError, "read entry", err)
			}
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				rec, err := a.entries.Add(ctx, e)
				if err != nil {
					return WrapExitError(ExitFailure, "add entry", err)
				}
				return p.print(rec, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "added %s (queued for sync)\n", rec.ID)
					return err
				})
			})
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func NewUpdateCommand(o *RootOptions) *cobra.Command {
	var f entryFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an entry and queue the update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				existing, err := a.entries.Get(ctx, args[0])
				if err != nil {
					return WrapExitError(ExitFailure, "load entry", err)
				}
				e := existing.Entry
				if err := f.apply(cmd.Flags(), cmd.InOrStdin(), &e); err != nil {
					return WrapExitError(ExitCommandError, "read entry", err)
				}
				rec, err := a.entries.Update(ctx, args[0], e)
				if err != nil {
					return WrapExitError(ExitFailure, "update entry", err)
				}
				return p.print(rec, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "updated %s (queued for sync)\n", rec.ID)
					return err
				})
			})
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func NewDeleteCommand(o *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry locally and queue the remote delete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				if err := a.entries.Delete(ctx, args[0]); err != nil {
					return WrapExitError(ExitFailure, "delete entry", err)
				}
				return p.print(map[string]string{"deleted": args[0]}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "deleted %s\n", args[0])
					return err
				})
			})
		},
	}
}

func NewListCommand(o *RootOptions) *cobra.Command {
	var (
		date     string
		unsynced bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logbook entries, newest flight first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withApp(cmd, func(ctx context.Context, a *App, p printer) error {
				if unsynced {
					recs, err := a.entries.Unsynced(ctx)
					if err != nil {
						return WrapExitError(ExitFailure, "list entries", err)
					}
					if recs == nil {
						recs = []models.StoredRecord{}
					}
					plain := make([]models.Record, 0, len(recs))
					for _, r := range recs {
						plain = append(plain, r.Record)
					}
					return p.print(recs, func(w io.Writer) error { return recordTable(w, plain) })
				}

				var (
					recs []models.Record
					err  error
				)
				if date != "" {
					recs, err = a.entries.ListByDate(ctx, date)
				} else {
					recs, err = a.entries.List(ctx)
				}
				if err != nil {
					return WrapExitError(ExitFailure, "list entries", err)
				}
				if recs == nil {
					recs = []models.Record{}
				}
				return p.print(recs, func(w io.Writer) error { return recordTable(w, recs) })
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "only entries flown on this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&unsynced, "unsynced", false, "only entries not yet confirmed by the backend")
	return cmd
}

func recordTable(w io.Writer, recs []models.Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tREGISTRATION\tROUTE\tVERSION\tHASH")
	for _, r := range recs {
		hash := "-"
		if r.ContentHash != nil && len(*r.ContentHash) >= 12 {
			hash = (*r.ContentHash)[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s-%s\t%d\t%s\n",
			r.ID, r.Date, r.Registration, r.Departure, r.Destination, r.Version, hash)
	}
	return tw.Flush()
}
