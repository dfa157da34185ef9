package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/go-redis/redis"

	"github.com/auxroom/auxroom/schedule"
)

var listenaddr = flag.String("addr", ":8090", "websocket entry bind address")
var redisaddr = flag.String("redis", "localhost:6379", "redis address for the room registry")

func main() {

	flag.Parse()

	rclient := redis.NewClient(&redis.Options{Addr: *redisaddr})
	reg, err := schedule.NewRedisRegistry(rclient)
	if err != nil {
		log.Fatal(err)
	}

	proxy := schedule.NewLoadBalancedReverseProxy(reg)
	log.Fatal("RevProxy: ", http.ListenAndServe(*listenaddr, proxy.GetProxy()))
}
