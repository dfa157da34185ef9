package main

import (
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/auxroom/auxroom/session"
)

var addr = flag.String("addr", "ws://localhost:8080/ws", "broker websocket address")
var rid = flag.String("rid", "", "room id to join")
var key = flag.String("key", "", "room key (leader or follower)")
var user = flag.String("user", "listener", "username")

func main() {

	flag.Parse()

	if *rid == "" || *key == "" {
		log.Fatal("both -rid and -key are required")
	}

	player := session.NewClockPlayer()
	ch := session.NewChannel(nil, *addr, *rid, *key, *user)
	s := session.NewRoomSession(ch, player, *user)

	if err := s.Start(); err != nil {
		log.Fatal("failed to join room: ", err)
	}
	log.Printf("joined room %s as %s", *rid, *user)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
		log.Println("leaving room")
		s.Close()
	case <-s.Done():
	}
}
