package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis"
	"github.com/rs/cors"

	"github.com/auxroom/auxroom/room"
	"github.com/auxroom/auxroom/schedule"
)

var wsaddr = flag.String("ws", ":8080", "WebSocket Service bind address")
var restaddr = flag.String("rest", ":8081", "RESTful API bind address")
var redisaddr = flag.String("redis", "", "redis address for scheduling announcements (optional)")
var announcehost = flag.String("host", "localhost:8080", "host advertised to the scheduler")

func main() {

	flag.Parse()

	server := room.NewServer()

	restMux := room.NewRoomRestMux(server)

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", room.GetRoomWSHandleFunc(server))

	go server.Run()

	go func() {
		withCORS := cors.Default().Handler(restMux)
		log.Fatal("RESTful API: ", http.ListenAndServe(*restaddr, withCORS))
	}()

	if *redisaddr != "" {
		rclient := redis.NewClient(&redis.Options{Addr: *redisaddr})
		go func() {
			ticker := time.NewTicker(schedule.AnnouncePeriod)
			defer ticker.Stop()
			for range ticker.C {
				rooms := server.RoomIDs()
				err := schedule.Announce(rclient, &schedule.BackendAnnounce{
					Host:  schedule.Backend(*announcehost),
					Load:  schedule.ServerLoad(len(rooms)),
					Rooms: rooms,
				})
				if err != nil {
					log.Printf("schedule announce failed: %v", err)
				}
			}
		}()
	}

	// TODO: use TLS
	log.Fatal("WSServer: ", http.ListenAndServe(*wsaddr, wsMux))
}
