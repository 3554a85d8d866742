package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/arthur-debert/nanoprefs/internal/validation"
	"github.com/arthur-debert/nanoprefs/nanoprefs"
	"github.com/arthur-debert/nanoprefs/nanoprefs/storage"
	"github.com/arthur-debert/nanoprefs/types"
)

var (
	keyColor  = color.New(color.FgCyan, color.Bold)
	kindColor = color.New(color.FgYellow)
	okColor   = color.New(color.FgGreen)
)

// withStore runs fn against an open store and persists its edits.
func (c *cli) withStore(operation string, fn func(s *nanoprefs.Store, b *storage.Deferred) error) error {
	s, b, err := c.openStore(operation)
	if err != nil {
		return err
	}
	err = fn(s, b)
	if closeErr := s.Close(); closeErr != nil {
		err = errors.Join(err, wrapError(operation, closeErr))
	}
	return err
}

func newDumpCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "List every stored key with its kind and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore("dump", func(_ *nanoprefs.Store, b *storage.Deferred) error {
				if asJSON {
					data, err := json.MarshalIndent(b.All(), "", "  ")
					if err != nil {
						return wrapError("dump", err)
					}
					_, err = fmt.Fprintln(c.out, string(data))
					return err
				}
				return c.printTable(b.Snapshot())
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the store as a JSON object")
	return cmd
}

func (c *cli) printTable(snap storage.Snapshot) error {
	if len(snap) == 0 {
		_, err := fmt.Fprintln(c.out, "store is empty")
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, key := range snap.Keys() {
		v := snap[key]
		fmt.Fprintf(w, "%s\t%s\t%s\n", keyColor.Sprint(key), kindColor.Sprint(kindLabel(v.Kind)), formatValue(v))
	}
	return w.Flush()
}

var titleCaser = cases.Title(language.English)

// kindLabel renders a kind for humans: string_set becomes "String Set".
func kindLabel(k types.Kind) string {
	return titleCaser.String(strings.ReplaceAll(k.String(), "_", " "))
}

func formatValue(v storage.Value) string {
	if v.Kind == types.KindStringSet {
		return strings.Join(v.Set, ",")
	}
	return fmt.Sprint(v.Any())
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			return c.withStore("get", func(_ *nanoprefs.Store, b *storage.Deferred) error {
				v, ok := b.Raw(key)
				if !ok {
					return newKeyNotFoundError("get", key)
				}
				_, err := fmt.Fprintln(c.out, formatValue(v))
				return err
			})
		},
	}
}

func newSetCmd(c *cli) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "set KEY VALUE...",
		Short: "Store a value under KEY",
		Long: `Store a value under KEY. The value is parsed as --kind; a string_set
takes every remaining argument as a member.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1:]
			if err := validation.ValidateKey(key); err != nil {
				return &CLIError{Operation: "set", Cause: err.Error(), Underlying: err}
			}
			kind, err := types.ParseKind(kindName)
			if err != nil {
				return &CLIError{Operation: "set", Cause: err.Error(), Suggestions: []string{suggestKind}, Underlying: err}
			}
			v, err := parseValue(kind, raw)
			if err != nil {
				return err
			}
			err = c.withStore("set", func(_ *nanoprefs.Store, b *storage.Deferred) error {
				b.Put(key, v)
				return nil
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "%s %s = %s\n", okColor.Sprint("set"), keyColor.Sprint(key), formatValue(v))
			return err
		},
	}
	cmd.Flags().StringVarP(&kindName, "kind", "k", "string", "value kind: string|string_set|int|long|float|boolean")
	return cmd
}

// parseValue converts command line arguments into a value of kind.
func parseValue(kind types.Kind, raw []string) (storage.Value, error) {
	if kind == types.KindStringSet {
		return storage.StringSetValue(raw), nil
	}
	if len(raw) != 1 {
		return storage.Value{}, &CLIError{
			Operation:   "set",
			Cause:       fmt.Sprintf("a %s takes exactly one value, got %d", kind, len(raw)),
			Suggestions: []string{suggestKind},
		}
	}
	s := raw[0]
	switch kind {
	case types.KindString:
		return storage.StringValue(s), nil
	case types.KindInt:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return storage.Value{}, newValueError("set", kind.String(), s, err)
		}
		return storage.IntValue(int32(i)), nil
	case types.KindLong:
		l, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return storage.Value{}, newValueError("set", kind.String(), s, err)
		}
		return storage.LongValue(l), nil
	case types.KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return storage.Value{}, newValueError("set", kind.String(), s, err)
		}
		return storage.FloatValue(float32(f)), nil
	case types.KindBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return storage.Value{}, newValueError("set", kind.String(), s, err)
		}
		return storage.BoolValue(b), nil
	default:
		return storage.Value{}, newValueError("set", kind.String(), s, fmt.Errorf("unsupported kind"))
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm KEY...",
		Aliases: []string{"remove"},
		Short:   "Remove the values stored under the given keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var missing []string
			err := c.withStore("remove", func(_ *nanoprefs.Store, b *storage.Deferred) error {
				for _, key := range args {
					if !b.Contains(key) {
						missing = append(missing, key)
						continue
					}
					b.Remove(key)
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, key := range missing {
				fmt.Fprintf(c.errOut, "%s %s: not stored\n", kindColor.Sprint("skip"), key)
			}
			_, err = fmt.Fprintf(c.out, "%s %d key(s)\n", okColor.Sprint("removed"), len(args)-len(missing))
			return err
		},
	}
}

func newClearCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return &CLIError{
					Operation:   "clear",
					Cause:       "refusing to clear without --force",
					Suggestions: []string{suggestDump},
				}
			}
			var n int
			err := c.withStore("clear", func(s *nanoprefs.Store, b *storage.Deferred) error {
				n = len(b.Snapshot())
				s.Clear()
				return nil
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "%s %d key(s)\n", okColor.Sprint("cleared"), n)
			return err
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "confirm clearing the store")
	return cmd
}
