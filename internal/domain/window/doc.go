/*
Package window hosts shells for display windows.

A Controller owns the shells of one window and speaks the event protocol
on the window's channel: it spawns a shell when the display asks with
create, forwards input, and relays output as init then data. A Registry
keeps every open controller, routes inbound envelopes by channel and moves
shells between windows.

Move is a handshake. The source window unregisters the shell and sends
losing; the target queues it and sends add; the target display answers with
create, which binds the queued shell instead of spawning a new one.

Locks are taken in the order Registry, Controller, Shell. Shell hooks and
surface writes happen without the controller lock held.
*/
package window
