// Command speedtest drives a dataset through a write/read pass over every
// table and reports timings, the Go port of the original speed_test tool
// (spec.md §6's CLI surface).
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	ouroboros "github.com/ouroboros-db/ouroboros"
	"github.com/ouroboros-db/ouroboros/internal/olog"
)

// Exit codes, matching spec.md §6.
const (
	exitOK       = 0
	exitError    = 1
	exitDataFail = 2
)

type speedRecord struct {
	Field1 int32
	Field2 float64
	Field3 int32
}

func (r speedRecord) Pack(buf []byte) []byte {
	var tmp [16]byte
	binary.LittleEndian.PutUint32(tmp[0:4], uint32(r.Field1))
	binary.LittleEndian.PutUint64(tmp[4:12], math.Float64bits(r.Field2))
	binary.LittleEndian.PutUint32(tmp[12:16], uint32(r.Field3))
	return append(buf, tmp[:]...)
}

func (r *speedRecord) Unpack(buf []byte) []byte {
	r.Field1 = int32(binary.LittleEndian.Uint32(buf[0:4]))
	r.Field2 = math.Float64frombits(binary.LittleEndian.Uint64(buf[4:12]))
	r.Field3 = int32(binary.LittleEndian.Uint32(buf[12:16]))
	return buf[16:]
}

func (r speedRecord) StaticSize() int { return 16 }

func newSpeedRecord() *speedRecord { return &speedRecord{} }

func main() {
	os.Exit(run())
}

func run() int {
	var (
		name       string
		tblCount   uint32
		recCount   uint32
		itrCount   int
		useSession bool
	)

	// code is set inside RunE so run can report the data-fail exit code
	// spec.md §6 assigns its own number to, which a plain error return
	// can't distinguish from exitError.
	code := exitOK
	cmd := &cobra.Command{
		Use:   "speedtest",
		Short: "Measure dataset write/read throughput across tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			code, err = speedTest(name, tblCount, recCount, itrCount, useSession)
			return err
		},
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVarP(&name, "name", "n", "speed_test", "dataset file name")
	flags.Uint32VarP(&tblCount, "tbl-count", "t", 10, "count of tables")
	flags.Uint32VarP(&recCount, "rec-count", "r", 1000, "count of records per table")
	flags.IntVarP(&itrCount, "iterations", "i", 1, "count of repeats")
	flags.BoolVarP(&useSession, "session", "s", false, "reuse one session per table instead of one per record")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	return code
}

func speedTest(name string, tblCount, recCount uint32, itrCount int, useSession bool) (int, error) {
	fmt.Println("The options:")
	fmt.Printf("\tcount of repeats: %d\n", itrCount)
	fmt.Printf("\tcount of tables:  %d\n", tblCount)
	fmt.Printf("\tcount of records: %d\n", recCount)
	fmt.Printf("\tsingle session:   %v\n", useSession)
	fmt.Println()
	fmt.Println("Test the ouroboros:")

	os.Remove(name)
	os.Remove(name + ".bak")
	os.Remove(name + ".journal")

	ds, err := ouroboros.Open[*speedRecord](name, tblCount, recCount, newSpeedRecord, ouroboros.Config{})
	if err != nil {
		return exitError, err
	}
	defer ds.Close()

	for itr := 0; itr < itrCount; itr++ {
		fmt.Println()
		fmt.Printf("Repeat: %d\n", itr)
		var wrTime, rdTime time.Duration

		for idx := uint32(0); idx < tblCount; idx++ {
			fmt.Printf("\tTable: %d\n", idx)
			if !ds.TableExists(uint64(idx)) {
				if err := ds.AddTable(uint64(idx)); err != nil {
					return exitError, err
				}
			}

			want := fillRecords(recCount, recCount*idx)

			wrStart := time.Now()
			if err := writeTable(ds, uint64(idx), want, useSession); err != nil {
				return exitError, err
			}
			wrTime += time.Since(wrStart)

			rdStart := time.Now()
			got, err := readTable(ds, uint64(idx), recCount, useSession)
			if err != nil {
				return exitError, err
			}
			rdTime += time.Since(rdStart)

			for i := range want {
				if *want[i] != *got[i] {
					fmt.Println("Error: the data is wrong")
					return exitDataFail, nil
				}
			}
		}

		fmt.Printf("time of WR: %s\n", wrTime)
		fmt.Printf("time of RD: %s\n", rdTime)
		fmt.Printf("total time: %s\n", wrTime+rdTime)
	}
	return exitOK, nil
}

func fillRecords(count, val uint32) []*speedRecord {
	records := make([]*speedRecord, count)
	for i := uint32(0); i < count; i++ {
		records[i] = &speedRecord{
			Field1: int32(val + i),
			Field2: float64(val + i + 1),
			Field3: int32(val + i + 2),
		}
	}
	return records
}

func writeTable(ds *ouroboros.Dataset[*speedRecord], key uint64, records []*speedRecord, useSession bool) error {
	if useSession {
		sess, err := ds.SessionWr(key)
		if err != nil {
			return err
		}
		defer sess.Close()
		if err := sess.Start(); err != nil {
			return err
		}
		for _, r := range records {
			if _, err := sess.Add(r); err != nil {
				sess.Cancel()
				return err
			}
		}
		return sess.Stop()
	}

	for _, r := range records {
		sess, err := ds.SessionWr(key)
		if err != nil {
			return err
		}
		if err := sess.Start(); err != nil {
			sess.Close()
			return err
		}
		if _, err := sess.Add(r); err != nil {
			sess.Cancel()
			sess.Close()
			return err
		}
		if err := sess.Stop(); err != nil {
			sess.Close()
			return err
		}
		sess.Close()
	}
	return nil
}

func readTable(ds *ouroboros.Dataset[*speedRecord], key uint64, count uint32, useSession bool) ([]*speedRecord, error) {
	out := make([]*speedRecord, count)

	read := func(sess *ouroboros.Session[*speedRecord]) error {
		beg := sess.BegPos()
		pos := beg
		for i := uint32(0); i < count; i++ {
			rec, err := sess.Read(pos)
			if err != nil {
				return err
			}
			out[i] = rec
			pos = sess.Table().IncPos(pos, 1)
		}
		return nil
	}

	if useSession {
		sess, err := ds.SessionRd(key)
		if err != nil {
			return nil, err
		}
		defer sess.Close()
		if err := sess.Start(); err != nil {
			return nil, err
		}
		defer sess.Stop()
		if err := read(sess); err != nil {
			return nil, err
		}
		return out, nil
	}

	for i := uint32(0); i < count; i++ {
		sess, err := ds.SessionRd(key)
		if err != nil {
			return nil, err
		}
		if err := sess.Start(); err != nil {
			sess.Close()
			return nil, err
		}
		pos := sess.Table().IncPos(sess.BegPos(), i)
		rec, err := sess.Read(pos)
		sess.Stop()
		sess.Close()
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

func init() {
	olog.Init(olog.Config{Level: olog.WarnLevel})
}
