package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
)

//History optional redis journal of finished runs: the sampled point per run
//and any tile that killed a run. Everything here is best-effort - the
//pipeline never fails because redis is down.
type History struct {
	pool redis.Pool
}

type pointRecord struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
	At   string  `json:"at"`
}

type failRecord struct {
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Z   int    `json:"z"`
	Res string `json:"res"`
}

//NewHistory 连接redis
func NewHistory(addr string) *History {
	return &History{
		pool: redis.Pool{
			MaxIdle:     16,
			MaxActive:   32,
			IdleTimeout: 120,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr)
			},
		},
	}
}

func (h *History) closeConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		log.Errorf("redis connection close failure")
	}
}

//SavePoint records the geotag of a completed run.
func (h *History) SavePoint(runID string, p GeoPoint, zoom int) {
	if h == nil {
		return
	}
	conn := h.pool.Get()
	defer h.closeConn(conn)
	val, _ := json.Marshal(pointRecord{
		Lat:  p.Lat,
		Lon:  p.Lon,
		Zoom: zoom,
		At:   time.Now().Format(time.RFC3339),
	})
	if _, err := conn.Do("hset", "aerial:points", runID, val); err != nil {
		log.Errorf("redis save point failure")
	}
}

//SaveFailedTile records the tile that aborted a run, with its reason.
func (h *History) SaveFailedTile(runID string, t TileXyz, res string) {
	if h == nil {
		return
	}
	conn := h.pool.Get()
	defer h.closeConn(conn)
	key := "tile_" + strconv.Itoa(t.X) + "_" + strconv.Itoa(t.Y) + "_" + strconv.Itoa(t.Z)
	val, _ := json.Marshal(failRecord{X: t.X, Y: t.Y, Z: t.Z, Res: res})
	if _, err := conn.Do("hset", "aerial:fail_list:"+runID, key, val); err != nil {
		log.Errorf("redis save tile failure")
	}
}

//Close 关闭连接池
func (h *History) Close() {
	if h == nil {
		return
	}
	_ = h.pool.Close()
}
