package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/go-redis/redis"
	"github.com/rs/cors"

	"github.com/auxroom/auxroom/schedule"
)

var listenaddr = flag.String("addr", ":8082", "scheduler REST bind address")
var redisaddr = flag.String("redis", "localhost:6379", "redis address for the room registry")

func main() {

	flag.Parse()

	rclient := redis.NewClient(&redis.Options{Addr: *redisaddr})
	reg, err := schedule.NewRedisRegistry(rclient)
	if err != nil {
		log.Fatal(err)
	}

	sch := schedule.NewScheduler(rclient, reg)
	go sch.RunScheduler()

	withCORS := cors.Default().Handler(sch.GetProxy())
	log.Fatal("Scheduler: ", http.ListenAndServe(*listenaddr, withCORS))
}
