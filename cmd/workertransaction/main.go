// Command workertransaction is the Go port of the original
// worker_transaction tool (spec.md §6): many independent processes pointed
// at the same dataset files, some reading and some writing one table,
// verifying that the writer's counter field is strictly increasing by one
// across every record a reader observes. Multi-process coordination beyond
// what one OS process's DatasetContext provides is out of this port's
// scope (spec.md §5/§9); this binary still exercises the full
// session/transaction/retry shape a real deployment would run under.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ouroboros "github.com/ouroboros-db/ouroboros"
	"github.com/ouroboros-db/ouroboros/internal/olog"
)

// Exit codes, matching spec.md §6.
const (
	exitOK            = 0
	exitError         = 1
	exitDataFail      = 2
	exitLockRead      = 3
	exitLockWrite     = 4
	exitLockCreate    = 5
	maxLockAttempts   = 10
	maxExceptAttempts = 10
)

// workerRecord is record4<FIELD_INT32, FIELD_INT32, FIELD_FLOAT, FIELD_INT32>
// ported field-for-field: a strictly increasing counter, a random payload,
// the table key, and the writer's pid.
type workerRecord struct {
	Counter int32
	Rand    int32
	Key     int32
	Pid     int32
}

func (r workerRecord) Pack(buf []byte) []byte {
	var tmp [16]byte
	putInt32(tmp[0:4], r.Counter)
	putInt32(tmp[4:8], r.Rand)
	putInt32(tmp[8:12], r.Key)
	putInt32(tmp[12:16], r.Pid)
	return append(buf, tmp[:]...)
}

func (r *workerRecord) Unpack(buf []byte) []byte {
	r.Counter = getInt32(buf[0:4])
	r.Rand = getInt32(buf[4:8])
	r.Key = getInt32(buf[8:12])
	r.Pid = getInt32(buf[12:16])
	return buf[16:]
}

func (r workerRecord) StaticSize() int { return 16 }

func newWorkerRecord() *workerRecord { return &workerRecord{} }

func putInt32(buf []byte, v int32) {
	u := uint32(v)
	buf[0] = byte(u)
	buf[1] = byte(u >> 8)
	buf[2] = byte(u >> 16)
	buf[3] = byte(u >> 24)
}

func getInt32(buf []byte) int32 {
	return int32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
}

// errHandMade is the Go counterpart of the original's injected hand_error,
// used to exercise the retry-then-propagate path when -e is set.
var errHandMade = errors.New("hand-made exception")

type options struct {
	name      string
	key       int32
	tblCount  uint32
	recCount  uint32
	itrCount  int
	isWriter  bool
	isFull    bool
	isExcept  bool
	useTxn    bool
	pause     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "workertransaction",
		Short:        "Exercise one reader or writer process against a shared dataset table",
		SilenceUsage: true,
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.name, "name", "n", "worker_transaction", "dataset file name")
	var key int32
	flags.Int32VarP(&key, "key", "k", 0, "table key")
	flags.Uint32VarP(&opts.tblCount, "tbl-count", "t", 10, "count of tables")
	flags.Uint32VarP(&opts.recCount, "rec-count", "r", 1000, "count of records per table")
	flags.IntVarP(&opts.itrCount, "iterations", "i", 0, "count of iterations (0 = run until interrupted)")
	flags.BoolVarP(&opts.isWriter, "writer", "w", false, "run as a writer instead of a reader")
	flags.BoolVarP(&opts.isFull, "full", "f", false, "read the table's full range every iteration")
	flags.BoolVarP(&opts.isExcept, "except", "e", false, "randomly inject a hand-made exception")
	flags.BoolVarP(&opts.useTxn, "session", "s", false, "wrap every iteration in a dataset-wide Transaction")
	flags.BoolVarP(&opts.pause, "pause", "p", false, "wait for a signal before starting")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts.key = key
		return nil
	}
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}

	if opts.pause {
		pauseCtx, stopPause := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		for pauseCtx.Err() == nil {
			fmt.Println("waiting for the signal to start ...")
			time.Sleep(time.Second)
		}
		stopPause()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lastErr error
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		code, err := execTest(ctx, opts)
		if code != exitLockCreate {
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			return code
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "[LOCK CR]", lastErr)
	return exitLockCreate
}

func execTest(ctx context.Context, opts options) (int, error) {
	pid := os.Getpid()
	olog.Logger.Info().Int("pid", pid).Int32("key", opts.key).Msg("worker starting")

	ds, err := ouroboros.Open[*workerRecord](opts.name, opts.tblCount, opts.recCount, newWorkerRecord, ouroboros.Config{})
	if err != nil {
		if ouroboros.IsKind(err, ouroboros.KindLock) {
			return exitLockCreate, err
		}
		return exitError, err
	}
	defer ds.Close()

	key := uint64(opts.key)
	if err := ensureTable(ds, key); err != nil {
		if ouroboros.IsKind(err, ouroboros.KindLock) {
			return exitLockCreate, err
		}
		return exitError, err
	}

	if opts.isWriter {
		return runWriter(ctx, ds, key, opts)
	}
	return runReader(ctx, ds, key, opts)
}

// ensureTable attaches to key's table, creating it if it does not exist
// yet; AddTable takes the dataset lock exclusively for the creation.
func ensureTable(ds *ouroboros.Dataset[*workerRecord], key uint64) error {
	if ds.TableExists(key) {
		fmt.Printf("attach table %d ...OK\n", key)
		return nil
	}
	fmt.Printf("table key = %d not found\n", key)
	fmt.Printf("create table %d ...", key)
	if err := ds.AddTable(key); err != nil {
		return err
	}
	fmt.Println("OK")
	return nil
}

func runReader(ctx context.Context, ds *ouroboros.Dataset[*workerRecord], key uint64, opts options) (int, error) {
	exceptCounter, lockCounter := 0, 0
	iter := 0
	for ctx.Err() == nil {
		records, err := readOnce(ds, key, opts)
		if err != nil {
			switch {
			case errors.Is(err, errHandMade):
				exceptCounter++
				if exceptCounter < maxExceptAttempts {
					continue
				}
				return exitError, err
			case ouroboros.IsKind(err, ouroboros.KindLock):
				lockCounter++
				time.Sleep(100 * time.Millisecond)
				if lockCounter < maxLockAttempts {
					continue
				}
				return exitLockRead, err
			default:
				return exitError, err
			}
		}

		for i := 0; i < len(records)-1; i++ {
			if records[i].Counter+1 != records[i+1].Counter {
				return exitDataFail, fmt.Errorf("counter gap: %d then %d", records[i].Counter, records[i+1].Counter)
			}
		}

		iter++
		if opts.itrCount > 0 && iter >= opts.itrCount {
			return exitOK, nil
		}
		lockCounter = 0
		time.Sleep(100 * time.Millisecond)
	}
	return exitOK, nil
}

func readOnce(ds *ouroboros.Dataset[*workerRecord], key uint64, opts options) ([]*workerRecord, error) {
	var txn *ouroboros.Transaction[*workerRecord]
	if opts.useTxn {
		txn = ouroboros.NewTransaction(ds)
		if err := txn.Start(); err != nil {
			return nil, err
		}
		defer txn.Cancel()
	}

	var sess *ouroboros.Session[*workerRecord]
	var err error
	if txn != nil {
		sess, err = txn.SessionRd(key)
	} else {
		sess, err = ds.SessionRd(key)
	}
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	if err := sess.Start(); err != nil {
		return nil, err
	}
	defer sess.Stop()

	count := sess.Count()
	if count == 0 {
		return nil, nil
	}
	rbeg, rend := sess.BegPos(), sess.EndPos()
	beg, end := rbeg, sess.Table().DecPos(rend, 1)
	if !opts.isFull {
		offBeg := uint32(rand.Intn(int(count)))
		offEnd := uint32(0)
		if count-offBeg > 0 {
			offEnd = uint32(rand.Intn(int(count - offBeg)))
		}
		beg = sess.Table().IncPos(rbeg, offBeg)
		end = sess.Table().DecPos(rend, offEnd+1)
	}

	var records []*workerRecord
	for pos := beg; ; pos = sess.Table().IncPos(pos, 1) {
		rec, err := sess.Read(pos)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		if pos == end {
			break
		}
	}

	if opts.isExcept && rand.Intn(10) == 0 {
		return nil, errHandMade
	}
	return records, nil
}

func runWriter(ctx context.Context, ds *ouroboros.Dataset[*workerRecord], key uint64, opts options) (int, error) {
	pid := int32(os.Getpid())
	exceptCounter, lockCounter := 0, 0
	iter := 0
	for ctx.Err() == nil {
		err := writeOnce(ds, key, pid, opts)
		if err != nil {
			switch {
			case errors.Is(err, errHandMade):
				exceptCounter++
				if exceptCounter < maxExceptAttempts {
					continue
				}
				return exitError, err
			case ouroboros.IsKind(err, ouroboros.KindLock):
				lockCounter++
				time.Sleep(100 * time.Millisecond)
				if lockCounter < maxLockAttempts {
					continue
				}
				return exitLockWrite, err
			default:
				return exitError, err
			}
		}

		iter++
		if opts.itrCount > 0 && iter >= opts.itrCount {
			return exitOK, nil
		}
		lockCounter = 0
		time.Sleep(10 * time.Millisecond)
	}
	return exitOK, nil
}

func writeOnce(ds *ouroboros.Dataset[*workerRecord], key uint64, pid int32, opts options) error {
	var txn *ouroboros.Transaction[*workerRecord]
	if opts.useTxn {
		txn = ouroboros.NewTransaction(ds)
		if err := txn.Start(); err != nil {
			return err
		}
	}

	var sess *ouroboros.Session[*workerRecord]
	var err error
	if txn != nil {
		sess, err = txn.SessionWr(key)
	} else {
		sess, err = ds.SessionWr(key)
	}
	if err != nil {
		if txn != nil {
			txn.Cancel()
		}
		return err
	}
	if err := sess.Start(); err != nil {
		sess.Close()
		if txn != nil {
			txn.Cancel()
		}
		return err
	}

	cancel := func() {
		sess.Cancel()
		sess.Close()
		if txn != nil {
			txn.Cancel()
		}
	}

	var next int32
	count := sess.Count()
	if count > 0 {
		last, err := sess.Read(sess.Table().DecPos(sess.EndPos(), 1))
		if err != nil {
			cancel()
			return err
		}
		next = last.Counter + 1
	}

	toAdd := rand.Intn(int(opts.recCount)/10 + 1)
	for i := 0; i < toAdd; i++ {
		rec := &workerRecord{Counter: next, Rand: rand.Int31(), Key: opts.key, Pid: pid}
		if _, err := sess.Add(rec); err != nil {
			cancel()
			return err
		}
		next++
	}

	if opts.isExcept && rand.Intn(10) == 0 {
		cancel()
		return errHandMade
	}

	if err := sess.Stop(); err != nil {
		sess.Close()
		if txn != nil {
			txn.Cancel()
		}
		return err
	}
	sess.Close()
	if txn != nil {
		return txn.Stop()
	}
	return nil
}

func init() {
	olog.Init(olog.Config{Level: olog.WarnLevel})
}
