// Package etcd proporciona el cliente de configuración del puente QUIK.
//
// Estructura de claves:
// El cliente sigue el patrón de ruta `/APP/ENV/VAR_KEY` donde:
//   - `APP`: Nombre de la aplicación (por defecto "quik")
//   - `ENV`: Entorno (variable ENV; por defecto development)
//   - `VAR_KEY`: Clave de la variable (p.ej. transport/port)
//
// Endpoints desde ETCD_ENDPOINTS (separados por coma) o 127.0.0.1:2379.
//
// Ejemplo básico de uso:
//
//	client, err := etcd.New(etcd.WithEnv("production"))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	port, _ := client.GetVarIntWithDefault(ctx, "transport/port", 34130)
//	timeout, _ := client.GetVarDurationWithDefault(ctx, "transport/send_timeout_ms", 45*time.Second)
package etcd
