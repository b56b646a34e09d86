// Command mqdump is a small example binary exercising hello/send/receive
// against a live broker. It is not an administration CLI: it opens one
// connection, creates one session, sends a handful of text messages to a
// destination, then receives them back and prints their bodies.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nclabs/mqgo/pkg/mqc"
	"github.com/nclabs/mqgo/pkg/wire"
)

func main() {
	host := flag.String("host", "localhost", "broker host")
	port := flag.Int("port", 7676, "broker portmapper port")
	username := flag.String("user", "guest", "login username")
	password := flag.String("pass", "guest", "login password")
	dest := flag.String("dest", "mqdump.sample", "destination name")
	queue := flag.Bool("queue", true, "true for a queue destination, false for a topic")
	count := flag.Int("count", 5, "number of messages to send and receive")
	flag.Parse()

	conn, err := mqc.Connect(
		mqc.WithAddress(*host, *port),
		mqc.WithCredentials(*username, *password),
		mqc.WithLogger(mqc.NewBasicLogger(mqc.LogLevelInfo)),
	)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close()

	if err := conn.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	session, err := conn.CreateSession(mqc.AutoAck, mqc.Sync)
	if err != nil {
		log.Fatalf("create session: %v", err)
	}
	defer session.Close()

	d := mqc.Destination{Name: *dest, IsQueue: *queue}

	producer, err := session.CreateProducer(d, mqc.ProducerOptions{Persistent: true})
	if err != nil {
		log.Fatalf("create producer: %v", err)
	}

	consumer, err := session.CreateConsumer(d, mqc.ConsumerOptions{})
	if err != nil {
		log.Fatalf("create consumer: %v", err)
	}

	for i := 0; i < *count; i++ {
		body := []byte(fmt.Sprintf("mqdump message %d at %s", i, time.Now().Format(time.RFC3339Nano)))
		if err := producer.Send(wire.TypeTextMessage, nil, body); err != nil {
			log.Fatalf("send %d: %v", i, err)
		}
	}
	fmt.Printf("sent %d message(s) to %s\n", *count, *dest)

	for i := 0; i < *count; i++ {
		msg, err := consumer.Receive(10 * time.Second)
		if err != nil {
			log.Fatalf("receive %d: %v", i, err)
		}
		if msg == nil {
			log.Fatalf("receive %d: timed out", i)
		}
		fmt.Printf("received: %s\n", msg.Body)
	}
}
