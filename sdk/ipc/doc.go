// Package ipc provee el canal line-delimited usado por el transporte socket
// hacia el script Lua de QUIK.
//
// # Protocolo
//
//   - Un envelope JSON por línea, terminado en \n
//   - Entrada en el charset del terminal (cp1251 por defecto), salida en UTF-8
//   - TCP (host:port) o Named Pipe de Windows (\\.\pipe\<name>)
//
// # Uso Básico
//
//	conn, err := ipc.NewNetDialer().DialContext(ctx, "tcp", "127.0.0.1:34130")
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	writer := ipc.NewLineWriter(conn, nil)
//	if err := writer.WriteLine(body); err != nil {
//	    return err
//	}
//
//	reader, err := ipc.NewLineReader(conn, nil)
//	line, err := reader.ReadLine()
//
// # Características
//
//   - Buffering con bufio.Scanner (líneas de hasta 32MB por defecto)
//   - Transcodificación con golang.org/x/text
//   - Writes serializados con mutex
//   - Named Pipes via github.com/Microsoft/go-winio
//   - Reconexión (responsabilidad del caller)
package ipc
