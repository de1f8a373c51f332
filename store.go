package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

//TileStore optional read-through cache for raw tile bytes. Lookups happen
//before the network, writes are best-effort and never fail a run.
type TileStore struct {
	kind string
	dir  string
	db   *sql.DB
}

//OpenTileStore opens the configured cache backend. kind is one of "files",
//"mbtiles", "mysql" or "off"; "off" (or empty) returns a nil store.
func OpenTileStore(kind, dir, conn string) (*TileStore, error) {
	switch kind {
	case "", "off":
		return nil, nil
	case "files":
		if dir == "" {
			dir = "tile-cache"
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		return &TileStore{kind: kind, dir: dir}, nil
	case "mbtiles":
		if dir == "" {
			dir = "tile-cache"
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite3", filepath.Join(dir, "cache.mbtiles"))
		if err != nil {
			return nil, err
		}
		if err = optimizeConnection(db); err != nil {
			return nil, err
		}
		if err = createTileTables(db, "blob"); err != nil {
			return nil, err
		}
		return &TileStore{kind: kind, dir: dir, db: db}, nil
	case "mysql":
		db, err := sql.Open("mysql", conn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		if err = createTileTables(db, "mediumblob"); err != nil {
			return nil, err
		}
		return &TileStore{kind: kind, db: db}, nil
	default:
		return nil, fmt.Errorf("unknown cache format %q", kind)
	}
}

func createTileTables(db *sql.DB, blobType string) error {
	_, err := db.Exec("create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data " + blobType + ");")
	if err != nil {
		return err
	}
	_, _ = db.Exec("create unique index tile_index on tiles(zoom_level, tile_column, tile_row);")
	return nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=1")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=OFF")
	if err != nil {
		return err
	}
	return nil
}

//mbtiles rows store the TMS-flipped Y
func flipY(t TileXyz) int {
	return (1 << uint(t.Z)) - t.Y - 1
}

func (s *TileStore) filePath(t TileXyz) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d", t.Z), fmt.Sprintf("%d", t.X), fmt.Sprintf("%d.png", t.Y))
}

//Get 读取缓存瓦片
func (s *TileStore) Get(t TileXyz) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	if s.kind == "files" {
		data, err := os.ReadFile(s.filePath(t))
		if err != nil || len(data) == 0 {
			return nil, false
		}
		return data, true
	}
	var data []byte
	err := s.db.QueryRow("select tile_data from tiles where zoom_level=? and tile_column=? and tile_row=?",
		t.Z, t.X, flipY(t)).Scan(&data)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

//Put 写入缓存瓦片
func (s *TileStore) Put(t TileXyz, data []byte) {
	if s == nil {
		return
	}
	if s.kind == "files" {
		dir := filepath.Dir(s.filePath(t))
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			log.Warnf("cache dir %s: %s", dir, err)
			return
		}
		if err := os.WriteFile(s.filePath(t), data, os.ModePerm); err != nil {
			log.Warnf("cache tile %s: %s", t.ToString(), err)
		}
		return
	}
	sqlStr := "insert or ignore into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);"
	if s.kind == "mysql" {
		sqlStr = "insert ignore into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);"
	}
	if _, err := s.db.Exec(sqlStr, t.Z, t.X, flipY(t), data); err != nil {
		log.Warnf("cache tile %s: %s", t.ToString(), err)
	}
}

//Close 关闭缓存连接
func (s *TileStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		log.Warnf("cache close failure: %s", err)
	}
}
