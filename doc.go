// Package snd binds a handle-based native sound subsystem to Go.
//
// The native side (a Driver) runs its completion routines on its own threads.
// Those routines never call Go callbacks directly: they queue a work item on a
// Dispatcher, and the callback runs later on whichever goroutine drains it.
//
//	drv := alsa.Open(alsa.Config{})
//	sess := snd.NewSession(drv)
//
//	ch, err := sess.NewChannel(0, 0, func(ch *snd.Channel, cmd snd.Command) error {
//	    fmt.Println("reached", cmd)
//	    return nil
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ch.Close()
//
//	ch.Submit([]any{snd.CMD_BUFFER, 0, frames})
//	ch.Submit([]int{int(snd.CMD_CALLBACK), 1, 42})
//
//	go sess.Dispatcher().Serve(ctx)
//
// Command values are loosely typed: a single opcode, an (op, param1[, param2])
// integer tuple, or (op, param1, bytes). See DecodeCommand.
//
// Objects are referenced from the driver by integer handle, never by pointer,
// so a completion that arrives after Close resolves to nothing.
package snd
