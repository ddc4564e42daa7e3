package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/tools"
)

// Greeting seeds an empty conversation.
const Greeting = "¡Hola! Soy TU ASISTENTE CHIDO. ¿En qué te ayudo hoy? Di algo como 'busca cámaras' para empezar."

const systemTemplate = `Responde SIEMPRE en ESPAÑOL. Eres un asistente de catálogo para una tienda en línea.
Cuando el usuario pregunte por productos:
1. Usa search_products.
2. Devuelve los resultados numerados del 1 al 5 (si hay) con título, marca, categorías, precio y stock en sucursal.
3. Si el usuario pide más detalles de "el 2", "producto 5", "detalles del tres" o números en palabras (convierte 'cinco' a 5), llama get_product_details con ese número. En la respuesta, muestra solo un resumen corto + features clave, y pregunta '¿Quieres la descripción completa? Di sí o más'.
4. Si el usuario dice 'si', 'sí' o 'más' después de ofrecer descripción completa, muestra DIRECTAMENTE la 'description' del último producto en un formato simple, usando los últimos detalles de producto. Usa Thought → Final Answer SIN Action, ya que no necesitas herramientas. Recuerda del historial.
5. Si no hay búsqueda previa, pídele al usuario que busque primero.

FORMATO estricto para el razonamiento de herramientas:

You have access to the following tools:

%s

Use the following format EXACTLY. NO inventes Observations; el sistema las proporcionará. Después de escribir la línea "Action Input: ..." DEBES DETENERTE POR COMPLETO: no agregues texto ni continúes con Thought ni Final Answer hasta que el sistema envíe la Observation.

Question: the input question you must answer
Thought: you should always think about what to do
Action: the action to take, should be one of [%s]
Action Input: the input to the action
Observation: the result of the action
... (this Thought/Action/Action Input/Observation can repeat N times)
Thought: I now know the final answer
Final Answer: the final answer to the original input question

Ejemplo de PRIMER PASO (con herramienta):
Thought: Debo buscar productos.
Action: search_products
Action Input: "routers mikrotik"

Ejemplo de ÚLTIMO PASO (cuando ya tienes la info):
Thought: Ya conozco la respuesta final.
Final Answer: [lista numerada con título, marca, etc.]

¡Sigue ESTE formato EXACTAMENTE!`

// systemPrompt renders the instruction block with the tool manifest.
func systemPrompt(reg *tools.Registry) string {
	return fmt.Sprintf(systemTemplate, reg.Describe(), strings.Join(reg.Names(), ", "))
}

// openingMessage renders the first user message of a turn: history,
// both caches, and the question.
func openingMessage(sess *session.Session, userText string) string {
	var b strings.Builder

	b.WriteString("Historial de la conversación (para contexto):\n")
	for _, turn := range sess.ChatHistory {
		fmt.Fprintf(&b, "%s: %s\n", turn.Type, turn.Content)
	}

	b.WriteString("\nÚltimos IDs de productos encontrados (para referencia numérica):\n")
	if len(sess.LastSearchIDs) == 0 {
		b.WriteString("Sin búsquedas recientes\n")
	} else {
		ids := make([]string, len(sess.LastSearchIDs))
		for i, id := range sess.LastSearchIDs {
			ids[i] = fmt.Sprintf("%d", id)
		}
		b.WriteString(strings.Join(ids, ", "))
		b.WriteString("\n")
	}

	b.WriteString("\nÚltimos detalles de producto (para descripción completa):\n")
	if sess.LastProductDetails == nil {
		b.WriteString("Ninguno\n")
	} else {
		enc, err := json.Marshal(sess.LastProductDetails)
		if err != nil {
			enc = []byte("Ninguno")
		}
		b.Write(enc)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nQuestion: %s", userText)
	return b.String()
}
