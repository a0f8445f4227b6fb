/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *      http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// sessionsBucket is the bucket that indexes sessions.  Each session
// additionally gets a bucket of its own, named by the session id.
var sessionsBucket = []byte("sessions")

// SessionInfo summarizes one journal session.
type SessionInfo struct {
	// Id names the session (and its bucket).
	Id string `json:"id"`

	// Started is when the session's journal was opened.
	Started time.Time `json:"started"`

	// Updates is the number of updates the session recorded.
	// Filled in when sessions are listed, not stored.
	Updates int `json:"updates,omitempty"`
}

// Journal records a cell's updates in a file-backed store.
//
// A Journal is an observer only.  Nothing in a cell reads it back;
// use the ourodb tool (or Sessions/Scan) for that.
type Journal struct {
	sync.Mutex

	// Filename is the name of the store's file.
	Filename string

	// CellId, if given, is stored with the session info.
	CellId string

	// Debug turns on some logging.
	Debug bool

	db      *bolt.DB
	session []byte
	n       uint64
}

func (j *Journal) logf(format string, args ...interface{}) {
	if !j.Debug {
		return
	}
	log.Printf(format, args...)
}

// Open opens the store file and starts a new session.
func (j *Journal) Open(ctx context.Context) error {
	j.Lock()
	defer j.Unlock()
	if j.db != nil {
		return fmt.Errorf("journal '%s' already open", j.Filename)
	}

	options := &bolt.Options{
		Timeout: time.Second,
	}

	j.logf("Journal opening %s", j.Filename)
	db, err := bolt.Open(j.Filename, 0644, options)
	if err != nil {
		return err
	}

	id := uuid.New().String()
	if j.CellId != "" {
		id = j.CellId + "." + id
	}
	info := &SessionInfo{
		Id:      id,
		Started: time.Now().UTC(),
	}
	js, err := json.Marshal(info)
	if err != nil {
		db.Close()
		return err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(sessionsBucket)
		if err != nil {
			return err
		}
		if err = meta.Put([]byte(id), js); err != nil {
			return err
		}
		_, err = tx.CreateBucket([]byte(id))
		return err
	})
	if err != nil {
		db.Close()
		return err
	}

	j.db = db
	j.session = []byte(id)
	return nil
}

// OpenRead opens the store file read-only and does not start a new
// session.  Sessions and Scan work; Record returns an error.
func (j *Journal) OpenRead(ctx context.Context) error {
	j.Lock()
	defer j.Unlock()
	if j.db != nil {
		return fmt.Errorf("journal '%s' already open", j.Filename)
	}

	options := &bolt.Options{
		Timeout:  time.Second,
		ReadOnly: true,
	}

	j.logf("Journal opening %s read-only", j.Filename)
	db, err := bolt.Open(j.Filename, 0644, options)
	if err != nil {
		return err
	}

	j.db = db
	return nil
}

// Session returns the current session's id ("" if the journal isn't
// open).
func (j *Journal) Session() string {
	j.Lock()
	defer j.Unlock()
	return string(j.session)
}

// Record writes one update to the current session.
//
// Recording to a closed journal is a no-op.
func (j *Journal) Record(ctx context.Context, u *Update) error {
	j.Lock()
	defer j.Unlock()
	if j.db == nil {
		return nil
	}
	js, err := json.Marshal(u)
	if err != nil {
		return err
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, j.n)
	j.n++
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(j.session)
		if b == nil {
			return fmt.Errorf("session bucket '%s' is gone", j.session)
		}
		return b.Put(key, js)
	})
}

// Sessions lists all sessions in the store, with update counts.
func (j *Journal) Sessions(ctx context.Context) ([]*SessionInfo, error) {
	j.Lock()
	defer j.Unlock()
	if j.db == nil {
		return nil, fmt.Errorf("journal '%s' is not open", j.Filename)
	}
	var acc []*SessionInfo
	err := j.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(sessionsBucket)
		if meta == nil {
			return nil
		}
		c := meta.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var info SessionInfo
			if err := json.Unmarshal(v, &info); err != nil {
				return err
			}
			if b := tx.Bucket(k); b != nil {
				info.Updates = b.Stats().KeyN
			}
			acc = append(acc, &info)
		}
		return nil
	})
	return acc, err
}

// Scan calls f on each update in the given session, in the order the
// updates were recorded.
func (j *Journal) Scan(ctx context.Context, session string, f func(*Update) error) error {
	j.Lock()
	defer j.Unlock()
	if j.db == nil {
		return fmt.Errorf("journal '%s' is not open", j.Filename)
	}
	return j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(session))
		if b == nil {
			return fmt.Errorf("session '%s' does not exist", session)
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var u Update
			if err := json.Unmarshal(v, &u); err != nil {
				return err
			}
			if err := f(&u); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the store file.  Closing a closed journal is a no-op.
func (j *Journal) Close(ctx context.Context) error {
	j.Lock()
	defer j.Unlock()
	if j.db == nil {
		return nil
	}
	j.logf("Journal closing %s", j.Filename)
	err := j.db.Close()
	j.db = nil
	j.session = nil
	return err
}
