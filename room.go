/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/partycursor/channel"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	qrSize          = 320
	registerRetries = 3
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

//go:embed room/index.html
var roomHTML []byte

//go:embed room/app.css
var roomCSS []byte

//go:embed room/app.js
var roomJS []byte

func roomNotFound(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(http.StatusNotFound)

	_, _ = io.WriteString(w, newPage(cfg.prefix+"/room", "Room Not Found", "No such room. Click anywhere to open a new one."))
}

// serveRoomSocket upgrades the request and attaches the connection to the
// hub named by :room.
func serveRoomSocket(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := ps.ByName("room")
		if !validRoom.MatchString(room) {
			http.Error(w, "invalid room name", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Upgrading %s: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan channel.Envelope, clientBacklog),
			addr: realIP(r),
		}

		// A room reaped between lookup and registration is replaced by a
		// fresh one on the next attempt.
		var hub *Hub
		for range registerRetries {
			candidate := rm.getHub(room)
			if submit(candidate, candidate.register, client) {
				hub = candidate
				break
			}
		}
		if hub == nil {
			_ = conn.WriteJSON(channel.Envelope{
				Type:    channel.TypeStatus,
				Status:  channel.StatusTimedOut,
				Message: "room unavailable",
			})
			_ = conn.Close()
			return
		}

		go client.writePump()
		client.readPump(hub)
	}
}

// serveQR generates a PNG QR code for the room URL, for sharing with phones.
func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := ps.ByName("room")
		if !validRoom.MatchString(room) {
			http.Error(w, "invalid room name", http.StatusBadRequest)
			return
		}

		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !validRoom.MatchString(ps.ByName("room")) {
			roomNotFound(cfg, w)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(roomHTML)
	}
}

func serveStatic(cfg *Config, contentType string, data []byte) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

// redirectNewRoom handles GET /room by picking a fresh random room name.
func redirectNewRoom(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		room := rm.newRoomID()
		logf(cfg, "ROOMS: Sending %s to new room %s", realIP(r), room)
		http.Redirect(w, r, cfg.prefix+"/room/"+room, http.StatusTemporaryRedirect)
	}
}

// registerRooms sets up routes so that:
//   - $prefix/room           → redirects to a new random room
//   - $prefix/room/:room     → browser client
//   - $prefix/room/:room/ws  → websocket for that room
//   - $prefix/room/:room/qr  → PNG QR code for the room URL
func registerRooms(cfg *Config, rm *RoomManager, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/room", redirectNewRoom(cfg, rm))
	mux.GET(cfg.prefix+"/room/:room", serveRoomPage(cfg))
	mux.GET(cfg.prefix+"/room/:room/ws", serveRoomSocket(cfg, rm))
	mux.GET(cfg.prefix+"/room/:room/qr", serveQR(cfg, errs))

	mux.GET(cfg.prefix+"/assets/room/app.css", serveStatic(cfg, "text/css; charset=utf-8", roomCSS))
	mux.GET(cfg.prefix+"/assets/room/app.js", serveStatic(cfg, "text/javascript; charset=utf-8", roomJS))
}
